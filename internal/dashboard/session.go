package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionCookie holds the per-browser session id that keys the dataset cache.
const SessionCookie = "datadash_session"

// anonymousSession keys the dataset shared by requests that arrive without a
// valid session cookie, so clients that never send cookies cost one load in
// total rather than one per request.
const anonymousSession = "anonymous"

const (
	sessionKey  = "session"
	cacheKeyKey = "session_cache_key"
)

func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		key := id
		if err != nil {
			id = uuid.New().String()
			key = anonymousSession
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(sessionKey, id)
		c.Set(cacheKeyKey, key)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

// cacheKey is the dataset cache key: the session id once the browser sends
// it back, anonymousSession until then.
func cacheKey(c *gin.Context) string {
	return c.GetString(cacheKeyKey)
}
