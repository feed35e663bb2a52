package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	internalErrors "apna-payments/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstamojoCreatePaymentRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment-requests/", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "token", r.Header.Get("X-Auth-Token"))

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "100.00", r.PostForm.Get("amount"))
		assert.Equal(t, "test", r.PostForm.Get("purpose"))
		assert.Equal(t, "https://cb", r.PostForm.Get("webhook"))
		assert.Equal(t, "false", r.PostForm.Get("allow_repeated_payments"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "payment_request": {"id": "pr_1", "longurl": "https://pay/pr_1", "status": "Pending", "amount": "100.00"}}`))
	}))
	defer srv.Close()

	im := NewInstamojo(srv.URL+"/", "key", "token")
	pr, err := im.CreatePaymentRequest(context.Background(), PaymentRequestParams{
		Amount:  decimal.NewFromInt(100),
		Purpose: "test",
		Webhook: "https://cb",
	})
	require.NoError(t, err)

	assert.Equal(t, "pr_1", pr.ID)
	assert.Equal(t, "https://pay/pr_1", pr.LongURL)
	assert.Equal(t, "Pending", pr.Status)
	assert.Equal(t, "100.00", pr.Fields["amount"])
}

func TestInstamojoFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unsuccessful response", status: http.StatusOK, body: `{"success": false, "message": {"amount": ["too low"]}}`},
		{name: "error status", status: http.StatusBadRequest, body: `{"success": false}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "invalid json", status: http.StatusOK, body: `{`},
		{name: "missing id", status: http.StatusOK, body: `{"success": true, "payment_request": {"longurl": "https://pay"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			im := NewInstamojo(srv.URL, "key", "token")
			_, err := im.CreatePaymentRequest(context.Background(), PaymentRequestParams{Amount: decimal.NewFromInt(1)})
			require.ErrorIs(t, err, internalErrors.ErrGatewayUnavailable)
		})
	}
}

func TestInstamojoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	im := NewInstamojo(url, "key", "token")
	_, err := im.CreatePaymentRequest(context.Background(), PaymentRequestParams{Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, internalErrors.ErrGatewayUnavailable)
}
