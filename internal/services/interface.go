package services

import (
	"context"

	"apna-payments/internal/dtos"
	"apna-payments/internal/entities"
)

type IntentsInterface interface {
	CreateIntent(ctx context.Context, req dtos.CreateIntentRequest) (*entities.IntentResult, error)
	AcceptCompletion(n entities.Notification) (*entities.CompletionResult, error)
}
