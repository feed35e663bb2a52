package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"apna-payments/internal/config"
	internalErrors "apna-payments/internal/errors"
)

var httpClient = &http.Client{
	Timeout: config.GatewayTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	},
}

type Instamojo struct {
	baseURL   string
	apiKey    string
	authToken string
}

func NewInstamojo(baseURL, apiKey, authToken string) *Instamojo {
	return &Instamojo{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		authToken: authToken,
	}
}

type createPaymentRequestResponse struct {
	Success        bool            `json:"success"`
	PaymentRequest map[string]any  `json:"payment_request"`
	Message        json.RawMessage `json:"message"`
}

func (im *Instamojo) CreatePaymentRequest(ctx context.Context, params PaymentRequestParams) (*PaymentRequest, error) {
	endpoint := fmt.Sprintf("%s/payment-requests/", im.baseURL)

	form := url.Values{}
	form.Set("amount", params.Amount.StringFixed(2))
	form.Set("purpose", params.Purpose)
	form.Set("webhook", params.Webhook)
	form.Set("allow_repeated_payments", strconv.FormatBool(params.AllowRepeatedPayments))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Api-Key", im.apiKey)
	req.Header.Set("X-Auth-Token", im.authToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending payment request: %v", internalErrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: gateway returned status %d: %s", internalErrors.ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	var response createPaymentRequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: decoding gateway response: %v", internalErrors.ErrGatewayUnavailable, err)
	}

	if !response.Success {
		return nil, fmt.Errorf("%w: gateway rejected payment request: %s", internalErrors.ErrGatewayUnavailable, string(response.Message))
	}

	pr := &PaymentRequest{Fields: response.PaymentRequest}
	pr.ID, _ = response.PaymentRequest["id"].(string)
	pr.LongURL, _ = response.PaymentRequest["longurl"].(string)
	pr.Status, _ = response.PaymentRequest["status"].(string)

	if pr.ID == "" {
		return nil, fmt.Errorf("%w: gateway response has no payment request id", internalErrors.ErrGatewayUnavailable)
	}

	return pr, nil
}
