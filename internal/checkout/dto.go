package checkout

import "github.com/google/uuid"

// Request is the buyer's checkout form.
type Request struct {
	BeatID        string `json:"beatId" validate:"required"`
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	LicenseType   string `json:"licenseType"`
}

// Response carries what the browser needs to redirect to Stripe.
type Response struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	OrderID   uuid.UUID `json:"orderId"`
}
