package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeResult(w http.ResponseWriter, status int, result any) {
	writeJSON(w, status, successEnvelope{Success: true, Result: result})
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	body := errorBody{
		Code:      string(code),
		Message:   "internal error",
		Retryable: code.Retryable(),
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		if len(appErr.Metadata) > 0 {
			body.Details = appErr.Metadata
		}
	}
	writeJSON(w, code.HTTPStatus(), errorEnvelope{Error: body})
}

// writeRejection renders a validator verdict. Reasons are reported as-is:
// taxonomy codes keep their retryable classification, custom validator
// reasons are final.
func writeRejection(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{Error: errorBody{
		Code:      reason,
		Message:   "action rejected",
		Retryable: apperrors.Code(reason).Retryable(),
	}})
}
