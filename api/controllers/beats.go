package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/api/responses"
	"github.com/chryzcode/ycsyh-site/api/validators"
	"github.com/chryzcode/ycsyh-site/internal/beats"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

// BeatList serves the public catalog. Sold beats are hidden unless sold=true.
func BeatList(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "beats service unavailable"))
			return
		}

		query := r.URL.Query()
		params := beats.ListParams{}
		if raw := validators.QueryParam(r, "category", 50); raw != "" {
			category, err := enums.ParseBeatCategory(raw)
			if err != nil {
				responses.WriteSuccess(w, []beats.BeatDTO{})
				return
			}
			params.Category = &category
		}
		if raw := strings.TrimSpace(query.Get("sold")); raw != "" {
			includeSold, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sold must be true or false"))
				return
			}
			params.IncludeSold = includeSold
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func BeatGet(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id", "Beat not found")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		beat, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, beat)
	}
}

// BeatPreview redirects to the preview audio, falling back to the MP3.
func BeatPreview(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id", "Beat not found")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := svc.PreviewURL(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func AdminBeatGet(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id", "Beat not found")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		beat, err := svc.GetAdmin(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, beat)
	}
}

func AdminBeatCreate(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body beats.BeatInput
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		beat, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, beat)
	}
}

func AdminBeatUpdate(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id", "Beat not found")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body beats.BeatInput
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		beat, err := svc.Update(r.Context(), id, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, beat)
	}
}

func AdminBeatDelete(svc beats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id", "Beat not found")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, messageResponse{Message: "Beat deleted successfully"})
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// parseUUIDParam reads a chi URL param. Malformed ids are reported as missing
// records since no such row can exist.
func parseUUIDParam(r *http.Request, name, notFound string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return id, nil
}
