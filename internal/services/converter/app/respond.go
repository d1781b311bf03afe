package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

// The job endpoints speak the same response envelope as the game service,
// so the converter client can decode both without caring which side of the
// split it is talking to.

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

func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, into any) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	if err := json.NewDecoder(body).Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.New(apperrors.CodePayloadTooLarge, "request body exceeds the size cap")
		}
		return apperrors.Wrap(apperrors.CodeInvalidActionShape, "malformed request body", err)
	}
	return nil
}
