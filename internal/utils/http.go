package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the id the proxy assigns to every request.
const RequestIDHeader = "X-Request-Id"

// ErrorMessage is the JSON body of every error the proxy answers itself.
type ErrorMessage struct {
	Error     string `json:"error"`
	Target    string `json:"target,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ProxyError answers a request the proxy could not forward to target. Cancelled client
// requests are not logged.
func ProxyError(w http.ResponseWriter, r *http.Request, err error, target string, code int) {
	if !errors.Is(err, context.Canceled) {
		log.Error().
			Err(err).
			Str("request_id", r.Header.Get(RequestIDHeader)).
			Str("target", target).
			Msgf("error proxying %s", r.URL.Path)
	}
	writeError(w, ErrorMessage{Error: errorText(err), Target: target, RequestID: r.Header.Get(RequestIDHeader)}, code)
}

// WriteHTTPError sends a JSON error response without logging.
func WriteHTTPError(w http.ResponseWriter, err error, code int) {
	writeError(w, ErrorMessage{Error: errorText(err), RequestID: w.Header().Get(RequestIDHeader)}, code)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, msg ErrorMessage, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(&msg)
}
