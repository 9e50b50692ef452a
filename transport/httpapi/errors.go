package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MrEthical07/authemu"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Errors  []errorDetail `json:"errors,omitempty"`
	Status  string        `json:"status,omitempty"`
}

type errorDetail struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
	Domain  string `json:"domain"`
}

func invalidArgument(detail string) *authemu.Error {
	return &authemu.Error{Kind: authemu.KindBadRequest, Code: authemu.CodeInvalidArgument, Detail: detail}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := authemu.AsError(err)
	status := e.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("operation failed",
			zap.String("path", r.URL.Path),
			zap.String("code", e.Code),
			zap.Error(err),
		)
	}
	msg := e.Error()
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    status,
		Message: msg,
		Errors:  []errorDetail{{Message: msg, Reason: "invalid", Domain: "global"}},
		Status:  e.Kind.String(),
	}})
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorEnvelope{Error: errorBody{
		Code:    http.StatusNotFound,
		Message: "Not Found: " + r.Method + " " + r.URL.Path,
		Status:  "NOT_FOUND",
	}})
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: errorBody{
		Code:    http.StatusMethodNotAllowed,
		Message: "Method " + r.Method + " is not allowed on " + r.URL.Path,
		Status:  "METHOD_NOT_ALLOWED",
	}})
}
