package dashboard

import (
	"errors"
	"net/http"

	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/pipeline/redact"
	"github.com/shpitdev/datadash/pkg/provider"
)

// queryError reports a malformed query parameter.
type queryError struct {
	Param string
	Value string
}

func (e *queryError) Error() string {
	return "parámetro inválido " + e.Param + "=" + e.Value
}

// userMessage turns a pipeline error into the message shown on the page.
func userMessage(err error) string {
	var (
		du *provider.DataUnavailableError
		uc *chart.UnsupportedChartError
		qe *queryError
	)
	switch {
	case errors.As(err, &du):
		return redact.Secrets("Error al cargar los datos: " + du.Error())
	case errors.As(err, &uc):
		msg := "Gráfico no soportado: " + uc.Kind
		if uc.Reason != "" {
			msg += " (" + uc.Reason + ")"
		}
		return redact.Secrets(msg)
	case errors.As(err, &qe):
		return redact.Secrets(qe.Error())
	default:
		return redact.Secrets("Error: " + err.Error())
	}
}

// statusFor maps a pipeline error to the status used by the file endpoints.
func statusFor(err error) int {
	var (
		du *provider.DataUnavailableError
		uc *chart.UnsupportedChartError
		qe *queryError
	)
	switch {
	case errors.As(err, &du):
		return http.StatusBadGateway
	case errors.As(err, &uc), errors.As(err, &qe):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
