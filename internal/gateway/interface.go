package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type PaymentGatewayInterface interface {
	CreatePaymentRequest(ctx context.Context, params PaymentRequestParams) (*PaymentRequest, error)
}

type PaymentRequestParams struct {
	Amount                decimal.Decimal
	Purpose               string
	Webhook               string
	AllowRepeatedPayments bool
}

// PaymentRequest is what the gateway returned for a created request. Fields
// holds the full payment_request object as sent by the gateway.
type PaymentRequest struct {
	ID      string
	LongURL string
	Status  string
	Fields  map[string]any
}
