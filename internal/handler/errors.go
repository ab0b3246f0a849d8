package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
	"github.com/ritikkatiyar/ecom-storefront/internal/cart"
	"github.com/ritikkatiyar/ecom-storefront/internal/catalog"
	"github.com/ritikkatiyar/ecom-storefront/internal/middleware"
	"github.com/ritikkatiyar/ecom-storefront/internal/orders"
	"github.com/ritikkatiyar/ecom-storefront/internal/session"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

// writeError maps a domain or backend error onto the storefront error body.
// Backend statuses pass through and the backend correlation id is kept so
// the user can quote it.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	correlationID := middleware.GetCorrelationID(c)

	var integrity *cart.IntegrityError
	switch {
	case errors.As(err, &integrity):
		response.WriteError(c, http.StatusBadGateway, &response.ErrorData{
			Code:          "CART_INTEGRITY",
			Message:       "cart service returned an inconsistent cart",
			Details:       integrity.Error(),
			CorrelationID: correlationID,
		})
		return
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, catalog.ErrNoFiles),
		errors.Is(err, orders.ErrMissingIdempotencyKey):
		response.WriteError(c, http.StatusBadRequest, &response.ErrorData{
			Code:          "BAD_REQUEST",
			Message:       err.Error(),
			CorrelationID: correlationID,
		})
		return
	case errors.Is(err, session.ErrNoRefreshToken):
		response.WriteError(c, http.StatusUnauthorized, &response.ErrorData{
			Code:          "UNAUTHORIZED",
			Message:       "session expired",
			CorrelationID: correlationID,
		})
		return
	}

	apiErr, ok := apiclient.AsAPIError(err)
	if !ok {
		response.WriteError(c, http.StatusInternalServerError, &response.ErrorData{
			Code:          "INTERNAL_ERROR",
			Message:       "Internal Server Error",
			CorrelationID: correlationID,
		})
		return
	}

	if apiErr.CorrelationID != "" {
		correlationID = apiErr.CorrelationID
	}
	data := &response.ErrorData{
		Message:       apiErr.Message,
		CorrelationID: correlationID,
	}
	status := apiErr.Status

	switch apiErr.Kind {
	case apiclient.KindNetworkUnavailable:
		status = http.StatusBadGateway
		data.Code = "BACKEND_UNAVAILABLE"
	case apiclient.KindUnexpected:
		status = http.StatusBadGateway
		data.Code = "BAD_BACKEND_RESPONSE"
	case apiclient.KindUnauthorized:
		data.Code = "UNAUTHORIZED"
	case apiclient.KindValidation:
		data.Code = "VALIDATION_FAILED"
		data.Fields = make(map[string]string, len(apiErr.FieldErrors))
		for _, fe := range apiErr.FieldErrors {
			if fe.Field != "" {
				data.Fields[fe.Field] = fe.Message
			}
		}
	default:
		data.Code = "BACKEND_ERROR"
	}
	if apiErr.Payload != nil && apiErr.Payload.ErrorCode != "" {
		data.Code = apiErr.Payload.ErrorCode
	}
	if status < 400 {
		status = http.StatusBadGateway
	}

	response.WriteError(c, status, data)
}
