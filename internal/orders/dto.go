package orders

import (
	"strings"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

// BeatSummary is the slice of the beat shown alongside an order.
type BeatSummary struct {
	Title string `json:"title"`
}

// OrderSummary is the buyer-facing view returned after checkout.
type OrderSummary struct {
	ID             uuid.UUID         `json:"id"`
	Status         enums.OrderStatus `json:"status"`
	LicenseType    enums.LicenseType `json:"licenseType"`
	FilesDelivered bool              `json:"filesDelivered"`
	Beat           BeatSummary       `json:"beat"`
}

func SummaryFromModel(order *models.Order, beatTitle string) *OrderSummary {
	if order == nil {
		return nil
	}
	return &OrderSummary{
		ID:             order.ID,
		Status:         order.Status,
		LicenseType:    order.LicenseType,
		FilesDelivered: order.FilesDelivered,
		Beat:           BeatSummary{Title: beatTitle},
	}
}

// NormalizeEmail lowercases and trims a buyer address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
