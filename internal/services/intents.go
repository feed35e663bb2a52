package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"apna-payments/internal/config"
	"apna-payments/internal/dtos"
	"apna-payments/internal/entities"
	internalErrors "apna-payments/internal/errors"
	"apna-payments/internal/gateway"
	"apna-payments/internal/metrics"
	"apna-payments/internal/queue"
	"apna-payments/internal/store"
)

type IntentServiceParams struct {
	Log        *slog.Logger
	Gateway    gateway.PaymentGatewayInterface
	Records    store.RecordStore
	Dispatcher queue.DispatcherInterface
	// Pending is optional. Without it, notifications for unknown intents
	// are reported and dropped.
	Pending queue.PendingNotificationsInterface
	Metrics *metrics.Metrics
	// PrivateSalt enables webhook MAC verification when set.
	PrivateSalt string
}

type IntentService struct {
	log        *slog.Logger
	gw         gateway.PaymentGatewayInterface
	records    store.RecordStore
	dispatcher queue.DispatcherInterface
	pending    queue.PendingNotificationsInterface
	metrics    *metrics.Metrics
	salt       string
}

func NewIntentService(p IntentServiceParams) *IntentService {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	return &IntentService{
		log:        log.With("component", "intents"),
		gw:         p.Gateway,
		records:    p.Records,
		dispatcher: p.Dispatcher,
		pending:    p.Pending,
		metrics:    p.Metrics,
		salt:       p.PrivateSalt,
	}
}

// CreateIntent asks the gateway for a payment request and schedules the
// intent record write. Nothing is written when the gateway fails. An intent
// that was already paid is not re-initialized.
func (is *IntentService) CreateIntent(ctx context.Context, req dtos.CreateIntentRequest) (*entities.IntentResult, error) {
	uniqueCode, _ := req.Metadata[config.FieldUniqueCode].(string)
	if strings.TrimSpace(uniqueCode) == "" {
		is.metrics.IntentRequested("malformed")
		return nil, fmt.Errorf("%w: %s is required", internalErrors.ErrMalformedRequest, config.FieldUniqueCode)
	}

	existing, err := is.records.FindByKey(ctx, config.FieldUniqueCode, uniqueCode)
	switch {
	case err == nil && IntentState(existing) == entities.IntentCompleted:
		is.metrics.IntentRequested("already_completed")
		return nil, fmt.Errorf("%w: %s", internalErrors.ErrIntentCompleted, uniqueCode)
	case err != nil && !errors.Is(err, internalErrors.ErrNotFound):
		is.metrics.IntentRequested("store_error")
		is.log.Error("failed to look up intent", "unique_code", uniqueCode, "error", err)
		return nil, err
	}

	pr, err := is.gw.CreatePaymentRequest(ctx, gateway.PaymentRequestParams{
		Amount:                req.Amount,
		Purpose:               req.Purpose,
		Webhook:               req.CallbackURL,
		AllowRepeatedPayments: false,
	})
	if err != nil {
		is.metrics.IntentRequested("gateway_error")
		is.log.Error("failed to create payment request", "unique_code", uniqueCode, "error", err)
		if !errors.Is(err, internalErrors.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", internalErrors.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	doc := store.Document{}
	for k, v := range req.Metadata {
		doc[k] = v
	}
	for k, v := range pr.Fields {
		doc[k] = v
	}
	doc[config.FieldPaymentRequestID] = pr.ID
	doc["longurl"] = pr.LongURL

	is.schedule(queue.Task{
		Name: "record-intent",
		Key:  uniqueCode,
		Run: func(ctx context.Context) error {
			_, err := is.RecordIntent(ctx, doc)
			return err
		},
	})

	is.metrics.IntentRequested("created")
	is.log.Info("payment request created", "unique_code", uniqueCode, "payment_request_id", pr.ID)

	return &entities.IntentResult{
		Success:          true,
		LongURL:          pr.LongURL,
		PaymentRequestID: pr.ID,
	}, nil
}

// RecordIntent upserts the intent document by UniqueCode, then applies any
// completion notification that arrived before the record existed.
func (is *IntentService) RecordIntent(ctx context.Context, doc store.Document) (*store.Record, error) {
	uniqueCode, _ := doc[config.FieldUniqueCode].(string)
	if uniqueCode == "" {
		return nil, fmt.Errorf("%w: %s is required", internalErrors.ErrMalformedRequest, config.FieldUniqueCode)
	}

	rec, err := is.records.UpsertByKey(ctx, config.FieldUniqueCode, uniqueCode, doc)
	if err != nil {
		return nil, fmt.Errorf("recording intent %s: %w", uniqueCode, err)
	}
	is.log.Info("intent recorded", "unique_code", uniqueCode, "record_id", rec.ID)

	paymentRequestID, _ := rec.Fields[config.FieldPaymentRequestID].(string)
	if paymentRequestID == "" {
		return rec, nil
	}

	drained, err := is.drainPending(ctx, paymentRequestID)
	if err != nil {
		return rec, err
	}
	if drained != nil {
		rec = drained
	}
	return rec, nil
}

// AcceptCompletion validates a gateway callback on the request path and
// schedules the record update for credited payments.
func (is *IntentService) AcceptCompletion(n entities.Notification) (*entities.CompletionResult, error) {
	if is.salt != "" {
		if err := VerifyMAC(n, is.salt); err != nil {
			is.metrics.NotificationReceived(n.Status(), "invalid_signature")
			return nil, err
		}
	}

	if n.Status() == "" {
		is.metrics.NotificationReceived("", "malformed")
		return nil, fmt.Errorf("%w: status is required", internalErrors.ErrMalformedRequest)
	}

	if !n.Credited() {
		return is.ApplyCompletionNotification(context.Background(), n)
	}

	paymentRequestID := n.PaymentRequestID()
	if paymentRequestID == "" {
		is.metrics.NotificationReceived(n.Status(), "malformed")
		return nil, fmt.Errorf("%w: payment_request_id is required", internalErrors.ErrMalformedRequest)
	}

	is.schedule(queue.Task{
		Name: "apply-completion",
		Key:  paymentRequestID,
		Run: func(ctx context.Context) error {
			_, err := is.ApplyCompletionNotification(ctx, n)
			return err
		},
	})

	return &entities.CompletionResult{
		PaymentID:        n.PaymentID(),
		PaymentRequestID: paymentRequestID,
		Status:           n.Status(),
	}, nil
}

// ApplyCompletionNotification merges a credited notification into the
// intent with the matching payment request id. Other statuses are only
// logged. A missing intent is reported as ErrNotFound; the notification is
// parked so the intent picks it up once recorded.
func (is *IntentService) ApplyCompletionNotification(ctx context.Context, n entities.Notification) (*entities.CompletionResult, error) {
	result := &entities.CompletionResult{
		PaymentID:        n.PaymentID(),
		PaymentRequestID: n.PaymentRequestID(),
		Status:           n.Status(),
	}

	if !n.Credited() {
		is.metrics.NotificationReceived(n.Status(), "acknowledged")
		is.log.Info("payment failed or is pending", "payment_id", result.PaymentID, "status", result.Status)
		return result, nil
	}

	if result.PaymentRequestID == "" {
		is.metrics.NotificationReceived(n.Status(), "malformed")
		return result, fmt.Errorf("%w: payment_request_id is required", internalErrors.ErrMalformedRequest)
	}

	_, err := is.records.MergeByKey(ctx, config.FieldPaymentRequestID, result.PaymentRequestID, notificationDocument(n))
	if err == nil {
		result.Applied = true
		is.metrics.NotificationReceived(n.Status(), "applied")
		is.log.Info("payment status updated", "payment_id", result.PaymentID, "payment_request_id", result.PaymentRequestID)
		return result, nil
	}

	if !errors.Is(err, internalErrors.ErrNotFound) || is.pending == nil {
		is.metrics.NotificationReceived(n.Status(), "failed")
		return result, fmt.Errorf("applying completion for %s: %w", result.PaymentRequestID, err)
	}

	if perr := is.pending.Park(ctx, result.PaymentRequestID, n); perr != nil {
		is.metrics.NotificationReceived(n.Status(), "failed")
		return result, fmt.Errorf("applying completion for %s: %w (parking failed: %v)", result.PaymentRequestID, err, perr)
	}
	result.Parked = true

	// The intent may have been recorded after the merge missed it but before
	// the park; in that case its drain already ran and ours has to.
	if _, ferr := is.records.FindByKey(ctx, config.FieldPaymentRequestID, result.PaymentRequestID); ferr == nil {
		if _, derr := is.drainPending(ctx, result.PaymentRequestID); derr != nil {
			is.metrics.NotificationReceived(n.Status(), "failed")
			return result, derr
		}
		result.Parked = false
		result.Applied = true
		is.metrics.NotificationReceived(n.Status(), "applied")
		return result, nil
	}

	is.metrics.NotificationReceived(n.Status(), "parked")
	return result, fmt.Errorf("applying completion for %s: %w", result.PaymentRequestID, err)
}

// drainPending applies parked notifications for paymentRequestID and
// returns the resulting record, or nil when nothing was parked. On failure
// the unapplied notifications are parked again.
func (is *IntentService) drainPending(ctx context.Context, paymentRequestID string) (*store.Record, error) {
	if is.pending == nil {
		return nil, nil
	}

	parked, err := is.pending.Take(ctx, paymentRequestID)
	if err != nil {
		return nil, fmt.Errorf("taking parked notifications for %s: %w", paymentRequestID, err)
	}

	var rec *store.Record
	for i, n := range parked {
		if !n.Credited() {
			continue
		}
		rec, err = is.records.MergeByKey(ctx, config.FieldPaymentRequestID, paymentRequestID, notificationDocument(n))
		if err != nil {
			for _, rest := range parked[i:] {
				if perr := is.pending.Park(ctx, paymentRequestID, rest); perr != nil {
					is.log.Error("lost parked notification", "payment_request_id", paymentRequestID, "payment_id", rest.PaymentID(), "error", perr)
				}
			}
			return nil, fmt.Errorf("applying parked notification for %s: %w", paymentRequestID, err)
		}
		is.log.Info("applied parked notification", "payment_id", n.PaymentID(), "payment_request_id", paymentRequestID)
	}
	return rec, nil
}

// schedule dispatches task, or runs it inline when the dispatcher no longer
// accepts work so the write is not lost.
func (is *IntentService) schedule(task queue.Task) {
	err := is.dispatcher.Dispatch(task)
	if err == nil {
		return
	}

	is.log.Warn("dispatch failed, running task inline", "task", task.Name, "key", task.Key, "error", err)
	if err := task.Run(context.Background()); err != nil {
		is.log.Error("background task failed", "task", task.Name, "key", task.Key, "error", err)
	}
}

// IntentState derives the lifecycle state of a stored intent.
func IntentState(rec *store.Record) entities.IntentState {
	if status, _ := rec.Fields["status"].(string); status == config.StatusCredit {
		return entities.IntentCompleted
	}
	if id, _ := rec.Fields[config.FieldPaymentRequestID].(string); id != "" {
		return entities.IntentAwaitingPayment
	}
	return entities.IntentCreated
}

// notificationDocument is what a completion writes to the intent. The
// payment request id is the lookup key and never overwritten by a callback.
func notificationDocument(n entities.Notification) store.Document {
	doc := make(store.Document, len(n))
	for k, v := range n {
		if k == config.FieldPaymentRequestID {
			continue
		}
		doc[k] = v
	}
	return doc
}
