package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/api/middleware"
	"github.com/chryzcode/ycsyh-site/api/responses"
	"github.com/chryzcode/ycsyh-site/api/validators"
	"github.com/chryzcode/ycsyh-site/internal/fulfillment"
	internalorders "github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const (
	processedMessage        = "Order processed successfully"
	alreadyProcessedMessage = "Order already processed"
	emailSentMessage        = "Email sent successfully"
)

type fulfiller interface {
	Fulfill(ctx context.Context, input fulfillment.FulfillInput) (*fulfillment.Result, error)
}

type resender interface {
	Resend(ctx context.Context, orderID uuid.UUID) (*fulfillment.ResendResult, error)
}

type summaryReader interface {
	SummaryBySession(ctx context.Context, sessionID string) (*internalorders.OrderSummary, error)
}

type processRequest struct {
	SessionID string `json:"sessionId"`
}

type processResponse struct {
	Message string                       `json:"message"`
	Order   *internalorders.OrderSummary `json:"order"`
}

type resendResponse struct {
	Message string    `json:"message"`
	OrderID uuid.UUID `json:"orderId"`
	Email   string    `json:"email"`
}

// Process fulfills the order behind a Checkout session when the success page
// polls. It is safe to call repeatedly and concurrently with the webhook.
func Process(svc fulfiller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		var body processRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID := strings.TrimSpace(body.SessionID)
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Session ID is required"))
			return
		}

		result, err := svc.Fulfill(r.Context(), fulfillment.FulfillInput{
			SessionID: sessionID,
			Trigger:   enums.FulfillmentTriggerPoll,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message := processedMessage
		if result.AlreadyProcessed {
			message = alreadyProcessedMessage
		}
		responses.WriteSuccess(w, processResponse{Message: message, Order: result.Order})
	}
}

// BySession returns the order summary for a Checkout session without side effects.
func BySession(svc summaryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Session ID is required"))
			return
		}
		summary, err := svc.SummaryBySession(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// ResendEmail regenerates the contract and re-sends the delivery email for a
// completed order. Admin only.
func ResendEmail(svc resender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
			if admin, ok := middleware.AdminFromContext(ctx); ok {
				ctx = logg.WithField(ctx, "admin_email", admin.Email)
			}
		}

		result, err := svc.Resend(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "orders.resend_email.sent")
		}
		responses.WriteSuccess(w, resendResponse{
			Message: emailSentMessage,
			OrderID: result.OrderID,
			Email:   result.Email,
		})
	}
}
