package controllers

import (
	"net/http"

	"github.com/chryzcode/ycsyh-site/api/responses"
	"github.com/chryzcode/ycsyh-site/api/validators"
	checkoutsvc "github.com/chryzcode/ycsyh-site/internal/checkout"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

// Checkout opens a pending order and a Stripe Checkout session for one beat.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.Request
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
