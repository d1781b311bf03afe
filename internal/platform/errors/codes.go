// Package errors provides structured error handling for the MultiplayerGame services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInvalidActionShape Code = "INVALID_ACTION_SHAPE"
	CodeInvalidKind        Code = "INVALID_KIND"
	CodePayloadTooLarge    Code = "PAYLOAD_TOO_LARGE"

	// Room errors
	CodeRoomNotFound   Code = "ROOM_NOT_FOUND"
	CodeRoomNotReady   Code = "ROOM_NOT_READY"
	CodeRoomTerminated Code = "ROOM_TERMINATED"

	// Validation errors (validator-reported, benign)
	CodeNotYourTurn       Code = "NOT_YOUR_TURN"
	CodeGameFull          Code = "GAME_FULL"
	CodeDuplicatePlayer   Code = "DUPLICATE_PLAYER"
	CodeIllegalMove       Code = "ILLEGAL_MOVE"
	CodeGameNotActive     Code = "GAME_NOT_ACTIVE"
	CodeGameAlreadyActive Code = "GAME_ALREADY_ACTIVE"
	CodeNotEnoughPlayers  Code = "NOT_ENOUGH_PLAYERS"

	// Infrastructure errors
	CodeStoreFailure         Code = "STORE_FAILURE"
	CodeValidatorUnavailable Code = "VALIDATOR_UNAVAILABLE"
	CodeValidatorTimeout     Code = "VALIDATOR_TIMEOUT"
	CodeValidatorLimit       Code = "VALIDATOR_LIMIT"
	CodeTimeoutRetry         Code = "TIMEOUT_RETRY"
	CodeUpstreamUnavailable  Code = "UPSTREAM_UNAVAILABLE"

	// Conversion errors
	CodeAnalysisFailed        Code = "ANALYSIS_FAILED"
	CodeLLMFailed             Code = "LLM_FAILED"
	CodeArtifactPublishFailed Code = "ARTIFACT_PUBLISH_FAILED"
	CodeValidatorDeployFailed Code = "VALIDATOR_DEPLOY_FAILED"

	// Transport errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeRateLimited     Code = "RATE_LIMITED"
)

// Retryable reports whether clients may usefully retry the failed call.
//
// Validation rejections are final for the submitted action; infrastructure
// codes indicate a transient condition where a backoff-and-retry is advised.
func (c Code) Retryable() bool {
	switch c {
	case CodeStoreFailure, CodeValidatorTimeout, CodeTimeoutRetry,
		CodeUpstreamUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidActionShape, CodeInvalidKind:
		return http.StatusBadRequest
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRoomNotFound:
		return http.StatusNotFound
	case CodeRoomNotReady, CodeRoomTerminated:
		return http.StatusConflict
	case CodeNotYourTurn, CodeGameFull, CodeDuplicatePlayer, CodeIllegalMove,
		CodeGameNotActive, CodeGameAlreadyActive, CodeNotEnoughPlayers:
		return http.StatusUnprocessableEntity
	case CodeTimeoutRetry, CodeValidatorTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case CodeStoreFailure, CodeValidatorUnavailable, CodeValidatorLimit,
		CodeAnalysisFailed, CodeLLMFailed, CodeArtifactPublishFailed,
		CodeValidatorDeployFailed:
		return http.StatusInternalServerError
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
