package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/client"
)

const maxBodyBytes = 1 << 20

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Log(ctx).WithError(err).Warn("could not write response")
	}
}

// decode reads a JSON body into v. A malformed body is reported like a backend 400.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", &client.Error{
			StatusCode: http.StatusBadRequest,
			Method:     r.Method,
			Path:       r.URL.Path,
		})
	}
	return nil
}
