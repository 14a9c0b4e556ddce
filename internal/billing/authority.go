// AngelaMos | 2026
// authority.go

// Package billing drives subscription state from the billing authority into
// the record store and on to library access. Billing is always mutated
// first, then the record store, then access.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
)

var (
	ErrInvalidSignature     = fmt.Errorf("webhook signature verification failed: %w", core.ErrInvalidInput)
	ErrAdminExempt          = fmt.Errorf("admin accounts cannot be cancelled: %w", core.ErrInvalidInput)
	ErrNoSubscription       = fmt.Errorf("no active subscription found: %w", core.ErrInvalidInput)
	ErrSubscriptionInactive = fmt.Errorf("subscription is not active: %w", core.ErrInvalidInput)
	ErrPaymentIncomplete    = fmt.Errorf("payment not completed: %w", core.ErrInvalidInput)
	ErrAlreadySubscribed    = fmt.Errorf("you already have an active subscription: %w", core.ErrInvalidInput)
	ErrInvalidSession       = fmt.Errorf("invalid session: %w", core.ErrInvalidInput)
	ErrAdminTier            = fmt.Errorf("admin tier is assigned by operators only: %w", core.ErrForbidden)
	ErrNotOwner             = fmt.Errorf("membership belongs to another account: %w", core.ErrForbidden)
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
)

type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID             string
	URL            string
	PaymentStatus  string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	ItemID           string
	PriceID          string
	CurrentPeriodEnd time.Time
}

type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
}

// Event is a verified webhook delivery. Exactly one payload field is set for
// the event types the processor handles.
type Event struct {
	ID           string
	Type         string
	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *Invoice
}

// Authority is the billing system of record.
type Authority interface {
	CreateCustomer(ctx context.Context, p CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, sub *Subscription, priceID string) error
	CancelSubscription(ctx context.Context, id string) error
	ConstructEvent(payload []byte, signature string) (*Event, error)
}

// MapStatus translates an authority subscription status into the record
// store's status. ok is false for statuses that leave the record untouched.
func MapStatus(status string) (string, bool) {
	switch status {
	case "active", "trialing":
		return "active", true
	case "past_due":
		return "past_due", true
	case "canceled", "unpaid", "incomplete_expired":
		return "cancelled", true
	case "incomplete":
		return "pending", true
	default:
		return "", false
	}
}

// Plans links tiers to prices and carries the checkout redirect targets.
type Plans struct {
	PriceHD        string
	Price4K        string
	DefaultPriceID string
	FrontendURL    string
}

func NewPlans(cfg config.StripeConfig, frontendURL string) Plans {
	return Plans{
		PriceHD:        cfg.PriceHD,
		Price4K:        cfg.Price4K,
		DefaultPriceID: cfg.DefaultPriceID,
		FrontendURL:    frontendURL,
	}
}

// TierForPrice resolves the tier a price pays for. Any price other than the
// 4K price is the HD plan.
func (p Plans) TierForPrice(priceID string) access.Tier {
	if priceID != "" && priceID == p.Price4K {
		return access.Tier4K
	}
	return access.TierHD
}

func (p Plans) PriceForTier(t access.Tier) (string, error) {
	switch t {
	case access.TierHD:
		return p.PriceHD, nil
	case access.Tier4K:
		return p.Price4K, nil
	default:
		return "", fmt.Errorf("no price for tier %q: %w", t, core.ErrInvalidInput)
	}
}

func (p Plans) defaultPrice() string {
	if p.DefaultPriceID != "" {
		return p.DefaultPriceID
	}
	return p.PriceHD
}

// AccessManager is the access surface billing drives.
type AccessManager interface {
	ApplyTier(ctx context.Context, m access.Member, tier access.Tier) (access.Outcome, error)
	Revoke(ctx context.Context, m access.Member) (access.Outcome, error)
	Remove(ctx context.Context, m access.Member) (access.Removal, error)
}

type Ledger interface {
	Record(ctx context.Context, userID, action, details string)
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
