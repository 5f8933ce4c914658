// Package payment creates and inspects payment intents with the external
// processor. It never decides booking state; callers act on the Status.
package payment

import (
	"context"
)

// Status is the processor-neutral outcome of an intent.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusProcessing     Status = "processing"
	StatusRequiresAction Status = "requires_action"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       Status `json:"status"`
}

type IntentParams struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Processor is the payment processor boundary. Implementations return
// apperr kinds: ProcessorUnavailable for transport failures, PaymentFailed
// for declines, NotFound for unknown intents.
type Processor interface {
	CreateIntent(ctx context.Context, p IntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// CancelIntent voids an unpaid intent. It fails for an intent that has
	// already succeeded.
	CancelIntent(ctx context.Context, id string) (*Intent, error)
}
