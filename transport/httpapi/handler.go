package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/authemu"
	"github.com/MrEthical07/authemu/middleware"
)

const maxBodyBytes = 8 << 20

// Query parameters consumed by Google API front ends rather than the
// operations themselves.
var ignoredParams = map[string]bool{
	"key":         true,
	"alt":         true,
	"prettyPrint": true,
	"$alt":        true,
}

type handler struct {
	engine *authemu.Engine
	logger *zap.Logger
}

func (h *handler) operation(op authemu.OperationID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, op)
	}
}

// lookup resolves the operation from the {op} path parameter.
func (h *handler) lookup(ops map[string]authemu.OperationID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok := ops[chi.URLParam(r, "op")]
		if !ok {
			h.notFound(w, r)
			return
		}
		h.serve(w, r, op)
	}
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request, op authemu.OperationID) {
	body, err := requestBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	target := authemu.Target{
		ProjectID:  chi.URLParam(r, "project"),
		TenantID:   chi.URLParam(r, "tenant"),
		Privileged: middleware.CallerFromContext(r.Context()).Privileged,
	}
	resp, err := h.engine.Dispatch(r.Context(), op, target, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestBody returns the JSON object the operation decodes: the request
// body (JSON or form-encoded) with query parameters filled in for keys the
// body does not set.
func requestBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, invalidArgument("Request payload size exceeds the limit.")
		}
		return nil, invalidArgument("Could not read request body.")
	}

	fields := map[string]json.RawMessage{}
	switch {
	case isForm(r):
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, invalidArgument("Invalid form payload received.")
		}
		addValues(fields, values)
	case len(bytes.TrimSpace(raw)) > 0:
		if err := json.Unmarshal(raw, &fields); err != nil {
			// Not an object: let the operation report the decode error.
			return raw, nil
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}
	addValues(fields, r.URL.Query())

	if len(fields) == 0 {
		return nil, nil
	}
	return json.Marshal(fields)
}

func addValues(fields map[string]json.RawMessage, values url.Values) {
	for k, v := range values {
		if ignoredParams[k] || len(v) == 0 {
			continue
		}
		if _, ok := fields[k]; ok {
			continue
		}
		quoted, _ := json.Marshal(v[0])
		fields[k] = quoted
	}
}

func isForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
