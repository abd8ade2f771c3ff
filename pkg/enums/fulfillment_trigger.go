package enums

// FulfillmentTrigger identifies what asked for an order to be fulfilled.
type FulfillmentTrigger string

const (
	FulfillmentTriggerWebhook FulfillmentTrigger = "webhook"
	FulfillmentTriggerPoll    FulfillmentTrigger = "poll"
	FulfillmentTriggerResend  FulfillmentTrigger = "resend"
)

func (t FulfillmentTrigger) IsValid() bool {
	switch t {
	case FulfillmentTriggerWebhook, FulfillmentTriggerPoll, FulfillmentTriggerResend:
		return true
	}
	return false
}
