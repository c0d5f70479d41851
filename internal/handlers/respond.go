package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/requestctx"
	"github.com/medassist/api/internal/services"
)

const maxBodySize = 64 * 1024

// decodeJSON reads a bounded JSON body into dst, rejecting unknown junk sizes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

// writeServiceError translates service sentinel errors into the stable error
// envelope. Unknown errors are logged and surfaced as internal.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	code := httpx.CodeInternalError
	message := "internal server error"

	switch {
	case errors.Is(err, services.ErrAuthInvalidInput),
		errors.Is(err, services.ErrUserInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrPharmacistInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput):
		code, message = httpx.CodeValidationError, "invalid request"
	case errors.Is(err, services.ErrInvalidCredentials):
		code, message = httpx.CodeInvalidCredentials, "invalid phone or password"
	case errors.Is(err, services.ErrUserExists):
		code, message = httpx.CodeUserExists, "user already exists"
	case errors.Is(err, services.ErrUserNotFound):
		code, message = httpx.CodeUserNotFound, "user not found"
	case errors.Is(err, services.ErrOTPInvalid):
		code, message = httpx.CodeOTPInvalid, "verification code invalid"
	case errors.Is(err, services.ErrOTPExpired):
		code, message = httpx.CodeOTPExpired, "verification code expired"
	case errors.Is(err, services.ErrRefreshInvalid):
		code, message = httpx.CodeTokenInvalid, "refresh token invalid"
	case errors.Is(err, services.ErrOrderNotFound):
		code, message = httpx.CodeOrderNotFound, "order not found"
	case errors.Is(err, services.ErrOrderCannotCancel):
		code, message = httpx.CodeOrderCannotCancel, "order can no longer be cancelled"
	case errors.Is(err, services.ErrOrderInvalidTransition):
		code, message = httpx.CodeInvalidTransition, "order state does not allow this action"
	case errors.Is(err, services.ErrOrderNotDelivered):
		code, message = httpx.CodeInvalidTransition, "order has not been delivered"
	case errors.Is(err, services.ErrPharmacyNotFound):
		code, message = httpx.CodeBadRequest, "pharmacy not found or inactive"
	case errors.Is(err, services.ErrInsufficientStock):
		code, message = httpx.CodeInsufficientStock, "insufficient stock"
	case errors.Is(err, services.ErrInventoryLocked):
		code, message = httpx.CodeInventoryLocked, "stock is busy, retry shortly"
	case errors.Is(err, services.ErrInventoryNotFound),
		errors.Is(err, services.ErrBatchNotFound):
		code, message = httpx.CodeInventoryNotFound, "inventory item not found"
	case errors.Is(err, services.ErrBatchExists):
		code, message = httpx.CodeBatchExists, "batch already stocked"
	case errors.Is(err, services.ErrBatchReserved):
		code, message = httpx.CodeInvalidTransition, "batch still carries reservations"
	case errors.Is(err, services.ErrNoPharmacy):
		code, message = httpx.CodeBadRequest, "no pharmacy registered for this account"
	case errors.Is(err, services.ErrMedicineNotFound):
		code, message = httpx.CodeBadRequest, "medicine not found"
	case errors.Is(err, services.ErrCartItemNotFound):
		code, message = httpx.CodeBadRequest, "cart item not found"
	case errors.Is(err, services.ErrDeliveryNotFound):
		code, message = httpx.CodeDeliveryNotFound, "delivery not found"
	case errors.Is(err, services.ErrDeliveryNotClaimable):
		code, message = httpx.CodeDriverNotAvailable, "delivery already claimed"
	case errors.Is(err, services.ErrDeliveryInvalidTransition):
		code, message = httpx.CodeInvalidTransition, "delivery state does not allow this action"
	case errors.Is(err, services.ErrDeliveryOTPMismatch):
		code, message = httpx.CodeDeliveryOTPInvalid, "delivery code invalid"
	case errors.Is(err, services.ErrDeliveryNotReady):
		code, message = httpx.CodeInvalidTransition, "order is not ready for pickup"
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	}

	httpx.WriteError(ctx, w, httpx.CodeError(code, message))
}
