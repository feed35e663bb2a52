package entities

import "apna-payments/internal/config"

// Notification is the flat key/value payload the gateway posts when a
// payment changes state.
type Notification map[string]string

func (n Notification) Status() string {
	return n["status"]
}

func (n Notification) PaymentID() string {
	return n["payment_id"]
}

// PaymentRequestID is the gateway payment request the notification belongs
// to. Instamojo sends payment_request_id; id is accepted as a fallback.
func (n Notification) PaymentRequestID() string {
	if id := n["payment_request_id"]; id != "" {
		return id
	}
	return n[config.FieldPaymentRequestID]
}

func (n Notification) Credited() bool {
	return n.Status() == config.StatusCredit
}

type IntentState string

const (
	IntentCreated         IntentState = "Created"
	IntentAwaitingPayment IntentState = "AwaitingPayment"
	IntentCompleted       IntentState = "Completed"
)

type IntentResult struct {
	Success          bool
	LongURL          string
	PaymentRequestID string
}

type CompletionResult struct {
	PaymentID        string
	PaymentRequestID string
	Status           string
	// Applied is set when the notification was merged into an intent record.
	Applied bool
	// Parked is set when no intent matched yet and the notification was
	// kept for the intent to pick up once it is recorded.
	Parked bool
}
