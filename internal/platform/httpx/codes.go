package httpx

import "net/http"

// Stable error codes surfaced in the error envelope. Clients key off these,
// never off the human message.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeUserExists         = "USER_EXISTS"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeOTPInvalid         = "OTP_INVALID"
	CodeOTPExpired         = "OTP_EXPIRED"
	CodeRateLimited        = "RATE_LIMITED"

	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeMissingField    = "MISSING_FIELD"
	CodeBadRequest      = "BAD_REQUEST"

	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeOrderCannotCancel   = "ORDER_CANNOT_CANCEL"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInventoryLocked     = "INVENTORY_LOCKED"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeInventoryNotFound   = "INVENTORY_NOT_FOUND"
	CodeBatchExists         = "BATCH_EXISTS"

	CodeDeliveryNotFound   = "DELIVERY_NOT_FOUND"
	CodeDeliveryOTPInvalid = "DELIVERY_OTP_INVALID"
	CodeDriverNotAvailable = "DRIVER_NOT_AVAILABLE"

	CodeDatabaseError        = "DATABASE_ERROR"
	CodeExternalServiceError = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInternalError        = "INTERNAL_ERROR"
)

var codeStatuses = map[string]int{
	CodeInvalidCredentials: http.StatusUnauthorized,
	CodeTokenExpired:       http.StatusUnauthorized,
	CodeTokenInvalid:       http.StatusUnauthorized,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeUserExists:         http.StatusConflict,
	CodeUserNotFound:       http.StatusNotFound,
	CodeOTPInvalid:         http.StatusBadRequest,
	CodeOTPExpired:         http.StatusBadRequest,
	CodeRateLimited:        http.StatusTooManyRequests,

	CodeValidationError: http.StatusBadRequest,
	CodeInvalidInput:    http.StatusBadRequest,
	CodeMissingField:    http.StatusBadRequest,
	CodeBadRequest:      http.StatusBadRequest,

	CodeOrderNotFound:       http.StatusNotFound,
	CodeOrderCannotCancel:   http.StatusConflict,
	CodeInvalidTransition:   http.StatusConflict,
	CodeInsufficientStock:   http.StatusConflict,
	CodeInventoryLocked:     http.StatusConflict,
	CodeIdempotencyConflict: http.StatusConflict,
	CodeInventoryNotFound:   http.StatusNotFound,
	CodeBatchExists:         http.StatusConflict,

	CodeDeliveryNotFound:   http.StatusNotFound,
	CodeDeliveryOTPInvalid: http.StatusBadRequest,
	CodeDriverNotAvailable: http.StatusConflict,

	CodeDatabaseError:        http.StatusInternalServerError,
	CodeExternalServiceError: http.StatusBadGateway,
	CodeServiceUnavailable:   http.StatusServiceUnavailable,
	CodeInternalError:        http.StatusInternalServerError,
}

// StatusForCode resolves the HTTP status paired with a stable error code.
func StatusForCode(code string) int {
	if status, ok := codeStatuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeError builds an Error from a stable code with its canonical status.
func CodeError(code, message string) Error {
	return NewError(code, message, StatusForCode(code))
}
