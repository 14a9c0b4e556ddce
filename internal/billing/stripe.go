// AngelaMos | 2026
// stripe.go

package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/metrics"
)

type StripeAuthority struct {
	api           *client.API
	webhookSecret string
}

// NewStripeAuthority builds the adapter. backends may be nil to use the
// live API.
func NewStripeAuthority(cfg config.StripeConfig, backends *stripe.Backends) *StripeAuthority {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &StripeAuthority{api: api, webhookSecret: cfg.WebhookSecret}
}

func observe(op string, start time.Time) {
	metrics.UpstreamRequestDuration.
		WithLabelValues("stripe", op).
		Observe(time.Since(start).Seconds())
}

func (s *StripeAuthority) CreateCustomer(
	ctx context.Context,
	p CustomerParams,
) (string, error) {
	defer observe("create_customer", time.Now())

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(p.Email),
		Name:   stripe.String(p.Name),
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", stripeError("create customer", err)
	}
	return c.ID, nil
}

func (s *StripeAuthority) CreateCheckoutSession(
	ctx context.Context,
	p CheckoutParams,
) (*CheckoutSession, error) {
	defer observe("create_checkout_session", time.Now())

	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError("create checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *StripeAuthority) GetCheckoutSession(
	ctx context.Context,
	id string,
) (*CheckoutSession, error) {
	defer observe("get_checkout_session", time.Now())

	sess, err := s.api.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, stripeError("get checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *StripeAuthority) GetSubscription(
	ctx context.Context,
	id string,
) (*Subscription, error) {
	defer observe("get_subscription", time.Now())

	sub, err := s.api.Subscriptions.Get(id, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, stripeError("get subscription", err)
	}
	return toSubscription(sub), nil
}

// UpdateSubscriptionPrice moves the subscription's first item to priceID,
// invoicing the proration immediately and failing if payment does not
// complete.
func (s *StripeAuthority) UpdateSubscriptionPrice(
	ctx context.Context,
	sub *Subscription,
	priceID string,
) error {
	defer observe("update_subscription", time.Now())

	if sub.ItemID == "" {
		return fmt.Errorf("update subscription %s: no items: %w", sub.ID, core.ErrInvalidInput)
	}

	_, err := s.api.Subscriptions.Update(sub.ID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(sub.ItemID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("always_invoice"),
		PaymentBehavior:   stripe.String("error_if_incomplete"),
	})
	if err != nil {
		return stripeError("update subscription", err)
	}
	return nil
}

func (s *StripeAuthority) CancelSubscription(ctx context.Context, id string) error {
	defer observe("cancel_subscription", time.Now())

	_, err := s.api.Subscriptions.Cancel(id, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return stripeError("cancel subscription", err)
	}
	return nil
}

// ConstructEvent verifies the signature header and decodes the object for
// the event types the processor consumes.
func (s *StripeAuthority) ConstructEvent(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Checkout = toCheckoutSession(&sess)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Subscription = toSubscription(&sub)
	case EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out.Invoice = toInvoice(&inv)
	}

	return out, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		Metadata:      s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}

func toSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:     s.ID,
		Status: string(s.Status),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0).UTC()
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out
}

func toInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{ID: inv.ID}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	return out
}

func stripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
		case se.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("%s: %w: %w", op, ErrPaymentIncomplete, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Authority = (*StripeAuthority)(nil)
