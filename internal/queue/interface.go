package queue

import (
	"context"

	"apna-payments/internal/entities"
)

type DispatcherInterface interface {
	Dispatch(task Task) error
}

// PendingNotificationsInterface holds completion notifications that arrived
// before the intent they belong to was recorded.
type PendingNotificationsInterface interface {
	Park(ctx context.Context, paymentRequestID string, n entities.Notification) error
	// Take returns and removes everything parked for paymentRequestID.
	Take(ctx context.Context, paymentRequestID string) ([]entities.Notification, error)
}
