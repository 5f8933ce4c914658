package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/metrics"
)

type Options struct {
	PublishableKey string
	Currency       string
	DefaultAmount  int64
	// Cache is optional.
	Cache *IntentCache
	Log   *zap.Logger
}

// Orchestrator applies defaults and idempotency on top of a Processor.
type Orchestrator struct {
	proc           Processor
	cache          *IntentCache
	publishableKey string
	currency       string
	defaultAmount  int64
	log            *zap.Logger
}

func NewOrchestrator(proc Processor, opts Options) *Orchestrator {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Orchestrator{
		proc:           proc,
		cache:          opts.Cache,
		publishableKey: opts.PublishableKey,
		currency:       strings.ToLower(opts.Currency),
		defaultAmount:  opts.DefaultAmount,
		log:            opts.Log,
	}
}

type IntentRequest struct {
	// Amount in the currency's minor unit; zero means the configured default.
	Amount   int64
	Currency string
	// IdempotencyKey identifies the caller's attempt. The same key always
	// yields the same intent.
	IdempotencyKey string
	Metadata       map[string]string
}

func (o *Orchestrator) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	const op = "payment.CreateIntent"
	amount := req.Amount
	if amount == 0 {
		amount = o.defaultAmount
	}
	if amount <= 0 {
		return nil, apperr.Validation(op, "amount must be positive")
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = o.currency
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	if o.cache != nil {
		cached, err := o.cache.Get(ctx, key)
		if err != nil {
			o.log.Warn("intent cache read failed", zap.String("idempotency_key", key), zap.Error(err))
		} else if cached != nil {
			metrics.PaymentIntents.WithLabelValues("cached").Inc()
			return cached, nil
		}
	}

	in, err := o.proc.CreateIntent(ctx, IntentParams{
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: key,
		Metadata:       req.Metadata,
	})
	if err != nil {
		metrics.PaymentIntents.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PaymentIntents.WithLabelValues("created").Inc()

	if o.cache != nil {
		if err := o.cache.Put(ctx, key, in); err != nil {
			o.log.Warn("intent cache write failed", zap.String("idempotency_key", key), zap.Error(err))
		}
	}
	return in, nil
}

// InspectIntent fetches the processor's current view of an intent.
func (o *Orchestrator) InspectIntent(ctx context.Context, id string) (*Intent, error) {
	if id == "" {
		return nil, apperr.Validation("payment.InspectIntent", "payment intent id required")
	}
	return o.proc.GetIntent(ctx, id)
}

// CancelIntent voids an intent that will never be confirmed.
func (o *Orchestrator) CancelIntent(ctx context.Context, id string) (*Intent, error) {
	if id == "" {
		return nil, apperr.Validation("payment.CancelIntent", "payment intent id required")
	}
	in, err := o.proc.CancelIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.PaymentIntents.WithLabelValues("canceled").Inc()
	return in, nil
}

func (o *Orchestrator) PublishableKey() string { return o.publishableKey }

func (o *Orchestrator) Currency() string { return o.currency }
