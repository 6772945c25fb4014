package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"graphscopeproxy/internal/apierr"
)

const maxRequestBodyBytes = 1 << 20

// decodeJSON reads a bounded, strict JSON body into dst, rejecting unknown
// fields, empty bodies, and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// writeJSON serializes a success response body.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAPIError writes err as the standard error envelope.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	apierr.WriteJSON(w, r.URL.Path, err)
}

// writeError is a convenience for call sites that only have a raw message,
// never an internal detail — used for request-decoding failures ahead of
// any typed apierr.
func writeError(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierr.New(apierr.CodeMalformedRequest, message))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": "method not allowed",
		"path":  r.URL.Path,
	})
}
