package api

import (
	"fmt"
	"os"
	"strings"
)

// Env is the runtime configuration for reaching the records API.
type Env struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// DefaultCAPath is the path to a PEM bundle that should be trusted for TLS.
	DefaultCAPath string
}

// LoadEnv reads DATA_API_URL (required), DATA_API_TOKEN and DEFAULT_CA_PATH.
//
// DATA_API_TOKEN may hold the token itself or the path of a file containing it.
func LoadEnv() (Env, error) {
	base := strings.TrimSpace(os.Getenv("DATA_API_URL"))
	if base == "" {
		return Env{}, fmt.Errorf("DATA_API_URL is required")
	}
	token, err := readTokenEnv("DATA_API_TOKEN")
	if err != nil {
		return Env{}, err
	}
	return Env{
		BaseURL:       base,
		Token:         token,
		DefaultCAPath: strings.TrimSpace(os.Getenv("DEFAULT_CA_PATH")),
	}, nil
}

// NewClient builds a Client from the environment.
func (e Env) NewClient() (*Client, error) {
	return NewClient(e.BaseURL, e.Token, e.DefaultCAPath)
}

func readTokenEnv(varName string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(varName))
	if raw == "" {
		return "", nil
	}
	st, err := os.Stat(raw)
	if err != nil || st.IsDir() {
		return raw, nil
	}
	b, err := os.ReadFile(raw)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", varName, err)
	}
	return strings.TrimSpace(string(b)), nil
}
