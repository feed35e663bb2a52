package dtos

import "github.com/shopspring/decimal"

// PaymentDefaults are the configured terms every intent is created with.
type PaymentDefaults struct {
	Amount  decimal.Decimal
	Purpose string
	Webhook string
}

type CreateIntentRequest struct {
	Amount      decimal.Decimal
	Purpose     string
	CallbackURL string
	// Metadata is the caller's JSON object; it must carry UniqueCode.
	Metadata map[string]any
}

type PaymentLinks struct {
	LongURL          string `json:"longurl"`
	PaymentRequestID string `json:"payment_request_id"`
}

type InitializePaymentResponse struct {
	Success bool `json:"success"`
	Message any  `json:"message"`
}

type CompletePaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
