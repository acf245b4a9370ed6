package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const (
	maxBodyBytes     = 4 << 10
	defaultListLimit = 20
	maxListLimit     = 500
)

var errBodyTooLarge = errors.New("request body too large")

// decodeBody strictly decodes a small JSON command body. An empty body leaves out untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(out)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return errBodyTooLarge
	default:
		return fmt.Errorf("invalid body: %w", err)
	}

	if dec.More() {
		return errors.New("invalid body: trailing data")
	}
	return nil
}

// badBody answers a decodeBody failure
func badBody(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

// listLimit reads ?limit, falling back to the default when absent or unparsable and clamping to maxListLimit
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
