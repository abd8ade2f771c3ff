package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	checkoutsvc "github.com/chryzcode/ycsyh-site/internal/checkout"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
)

type stubCheckoutService struct {
	req  *checkoutsvc.Request
	resp *checkoutsvc.Response
	err  error
}

func (s *stubCheckoutService) Create(_ context.Context, req checkoutsvc.Request) (*checkoutsvc.Response, error) {
	s.req = &req
	return s.resp, s.err
}

func TestCheckoutCreatesSession(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckoutService{resp: &checkoutsvc.Response{SessionID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1", OrderID: orderID}}
	body := `{"beatId":"` + uuid.NewString() + `","customerName":"Ada","customerEmail":"ada@example.com","licenseType":"WAV Lease"}`

	rec := httptest.NewRecorder()
	Checkout(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var got checkoutsvc.Response
	decodeData(t, rec, &got)
	if got.SessionID != "cs_test_1" || got.OrderID != orderID || got.URL == "" {
		t.Fatalf("unexpected response %+v", got)
	}
	if svc.req.LicenseType != "WAV Lease" {
		t.Fatalf("license type not forwarded: %+v", svc.req)
	}
}

func TestCheckoutRejectsBadEmail(t *testing.T) {
	svc := &stubCheckoutService{}
	body := `{"beatId":"b","customerName":"Ada","customerEmail":"not-an-email","licenseType":"MP3 Lease"}`

	rec := httptest.NewRecorder()
	Checkout(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.req != nil {
		t.Fatalf("service should not be called")
	}
}

func TestCheckoutSurfacesServiceErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"sold beat", pkgerrors.New(pkgerrors.CodeValidation, "This beat is already sold"), http.StatusBadRequest, "This beat is already sold"},
		{"missing beat", pkgerrors.New(pkgerrors.CodeNotFound, "Beat not found"), http.StatusNotFound, "Beat not found"},
		{"stripe down", pkgerrors.New(pkgerrors.CodeDependency, "Failed to create checkout session"), http.StatusInternalServerError, "Failed to create checkout session"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckoutService{err: tc.err}
			body := `{"beatId":"b","customerName":"Ada","customerEmail":"ada@example.com","licenseType":"Exclusive"}`
			rec := httptest.NewRecorder()
			Checkout(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body)))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if msg := decodeError(t, rec).Error.Message; msg != tc.message {
				t.Fatalf("expected %q, got %q", tc.message, msg)
			}
		})
	}
}
