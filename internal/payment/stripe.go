package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"tutoring-api/internal/apperr"
)

// Stripe is the Processor backed by the Stripe API.
type Stripe struct {
	api *client.API
}

// NewStripe builds a client for secretKey. backends may be nil to use the
// public Stripe endpoints.
func NewStripe(secretKey string, backends *stripe.Backends) *Stripe {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api}
}

func (s *Stripe) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, stripeErr("payment.CreateIntent", err)
	}
	return intentFromStripe(pi), nil
}

func (s *Stripe) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, stripeErr("payment.GetIntent", err)
	}
	return intentFromStripe(pi), nil
}

func (s *Stripe) CancelIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("abandoned"),
	}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Cancel(id, params)
	if err != nil {
		return nil, stripeErr("payment.CancelIntent", err)
	}
	return intentFromStripe(pi), nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       statusFromStripe(pi),
	}
}

func statusFromStripe(pi *stripe.PaymentIntent) Status {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return StatusProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return StatusRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// a fresh intent also sits here before the client confirms it
		if pi.LastPaymentError != nil {
			return StatusFailed
		}
		return StatusRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	}
	return StatusRequiresAction
}

func stripeErr(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return apperr.Wrap(apperr.KindProcessorUnavailable, op, err)
	}
	switch {
	case se.Type == stripe.ErrorTypeCard:
		return &apperr.Error{Kind: apperr.KindPaymentFailed, Op: op, Message: se.Msg, Err: err}
	case se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound:
		return apperr.NotFound(op, "payment intent")
	case se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests || se.Type == stripe.ErrorTypeAPI:
		return apperr.Wrap(apperr.KindProcessorUnavailable, op, err)
	case se.Type == stripe.ErrorTypeInvalidRequest:
		return &apperr.Error{Kind: apperr.KindValidation, Op: op, Message: se.Msg, Err: err}
	}
	return apperr.Wrap(apperr.KindProcessorUnavailable, op, err)
}
