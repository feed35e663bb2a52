package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"apna-payments/internal/dtos"
	"apna-payments/internal/entities"
	internalErrors "apna-payments/internal/errors"
)

const maxBodyBytes = 1 << 20

func (s *HttpServer) initializePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("cannot read request body", "error", err)
		writeJSON(w, http.StatusBadRequest, dtos.InitializePaymentResponse{Success: false, Message: "Cannot read request body"})
		return
	}

	defer r.Body.Close()

	var metadata map[string]any
	if err := json.Unmarshal(body, &metadata); err != nil || metadata == nil {
		slog.Error("cannot unmarshal request body", "error", err)
		writeJSON(w, http.StatusBadRequest, dtos.InitializePaymentResponse{Success: false, Message: "Request body must be a JSON object"})
		return
	}

	result, err := s.is.CreateIntent(r.Context(), dtos.CreateIntentRequest{
		Amount:      s.defaults.Amount,
		Purpose:     s.defaults.Purpose,
		CallbackURL: s.defaults.Webhook,
		Metadata:    metadata,
	})
	if err != nil {
		if errors.Is(err, internalErrors.ErrMalformedRequest) {
			writeJSON(w, http.StatusBadRequest, dtos.InitializePaymentResponse{Success: false, Message: err.Error()})
			return
		}
		if errors.Is(err, internalErrors.ErrIntentCompleted) {
			writeJSON(w, http.StatusConflict, dtos.InitializePaymentResponse{Success: false, Message: "Payment already completed"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dtos.InitializePaymentResponse{Success: false, Message: "Failed to create payment request"})
		return
	}

	writeJSON(w, http.StatusOK, dtos.InitializePaymentResponse{
		Success: true,
		Message: dtos.PaymentLinks{
			LongURL:          result.LongURL,
			PaymentRequestID: result.PaymentRequestID,
		},
	})
}

// completePayment receives the gateway's form-encoded webhook.
func (s *HttpServer) completePayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Error("error processing webhook", "error", err)
		writeJSON(w, http.StatusBadRequest, dtos.CompletePaymentResponse{Status: "error", Message: err.Error()})
		return
	}

	notification := make(entities.Notification, len(r.PostForm))
	for key := range r.PostForm {
		notification[key] = r.PostForm.Get(key)
	}

	if _, err := s.is.AcceptCompletion(notification); err != nil {
		slog.Error("error processing webhook", "payment_id", notification.PaymentID(), "error", err)
		writeJSON(w, http.StatusBadRequest, dtos.CompletePaymentResponse{Status: "error", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, dtos.CompletePaymentResponse{Status: "received"})
}

func (s *HttpServer) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Welcome to the Home Page!")
}

func (s *HttpServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	err := writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{
		Status: "all good",
	})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
