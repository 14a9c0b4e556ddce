// AngelaMos | 2026
// processor.go

package billing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/metrics"
	"github.com/deez125/novix-gateway/internal/user"
)

// Deps are the collaborators shared by the processor and the manager.
type Deps struct {
	Users     user.Repository
	Authority Authority
	Access    AccessManager
	Ledger    Ledger
	Tiers     access.TierMap
	Plans     Plans
}

// Processor applies billing webhook events. Every handler writes "set to"
// values so a redelivered event converges on the same state.
type Processor struct {
	Deps
	dedupe Deduper
}

// NewProcessor builds a processor. dedupe may be nil.
func NewProcessor(d Deps, dedupe Deduper) *Processor {
	return &Processor{Deps: d, dedupe: dedupe}
}

// ProcessWebhook verifies, de-duplicates and applies one delivery. A
// returned error asks the authority to redeliver.
func (p *Processor) ProcessWebhook(
	ctx context.Context,
	payload []byte,
	signature string,
) (err error) {
	ev, err := p.Authority.ConstructEvent(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return err
	}

	ctx, span := core.StartSpan(ctx, "billing.ProcessWebhook",
		attribute.String("event.id", ev.ID),
		attribute.String("event.type", ev.Type),
	)
	defer func() { core.EndSpan(span, err) }()

	claimed := false
	if p.dedupe != nil && ev.ID != "" {
		ok, cerr := p.dedupe.Claim(ctx, ev.ID)
		switch {
		case cerr != nil:
			slog.Warn("webhook dedupe unavailable", "event_id", ev.ID, "error", cerr)
		case !ok:
			metrics.WebhookEvents.WithLabelValues(ev.Type, "duplicate").Inc()
			slog.Info("duplicate webhook event skipped", "event_id", ev.ID, "type", ev.Type)
			return nil
		default:
			claimed = true
		}
	}

	handled, err := p.dispatch(ctx, ev)
	if err != nil {
		if claimed {
			if rerr := p.dedupe.Release(context.WithoutCancel(ctx), ev.ID); rerr != nil {
				slog.Warn("releasing webhook event failed", "event_id", ev.ID, "error", rerr)
			}
		}
		metrics.WebhookEvents.WithLabelValues(ev.Type, "failed").Inc()
		slog.Error("webhook processing failed",
			"event_id", ev.ID,
			"type", ev.Type,
			"error", err,
		)
		return fmt.Errorf("process %s: %w", ev.Type, err)
	}

	result := "processed"
	if !handled {
		result = "ignored"
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type, result).Inc()
	return nil
}

func (p *Processor) dispatch(ctx context.Context, ev *Event) (bool, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		if ev.Checkout == nil {
			return false, nil
		}
		return true, p.checkoutCompleted(ctx, ev.Checkout)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		if ev.Subscription == nil {
			return false, nil
		}
		return true, p.subscriptionChanged(ctx, ev.Subscription)
	case EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return false, nil
		}
		return true, p.subscriptionDeleted(ctx, ev.Subscription)
	case EventPaymentFailed:
		if ev.Invoice == nil {
			return false, nil
		}
		return true, p.paymentFailed(ctx, ev.Invoice)
	default:
		return false, nil
	}
}

func (p *Processor) checkoutCompleted(ctx context.Context, s *CheckoutSession) error {
	userID := s.Metadata["user_id"]
	if userID == "" {
		slog.Warn("checkout session without user_id", "session_id", s.ID)
		return nil
	}

	u, err := p.Users.GetByID(ctx, userID)
	if isNotFound(err) {
		slog.Warn("checkout session for unknown user", "session_id", s.ID, "user_id", userID)
		return nil
	}
	if err != nil {
		return err
	}

	oldID := s.Metadata["old_subscription_id"]
	upgrade := oldID != "" && oldID != s.SubscriptionID
	replaced := false
	if upgrade {
		if err := p.Authority.CancelSubscription(ctx, oldID); err != nil && !isNotFound(err) {
			slog.Error("cancelling replaced subscription failed",
				"user_id", userID,
				"subscription_id", oldID,
				"error", err,
			)
		} else {
			replaced = true
		}
	}

	tier, err := p.tierForSubscription(ctx, s.SubscriptionID)
	if err != nil {
		return err
	}

	switch {
	case replaced:
		from := s.Metadata["upgrade_from"]
		if from == "" {
			from = "previous"
		}
		p.Ledger.Record(ctx, userID, "subscription_upgraded",
			fmt.Sprintf("Upgraded from %s to %s plan", from, tier))
	case !upgrade:
		p.Ledger.Record(ctx, userID, "subscription_started",
			"Subscription activated via checkout")
	}

	_, err = p.activate(ctx, u, s.CustomerID, s.SubscriptionID, tier)
	return err
}

// ConfirmCheckoutSuccess is the synchronous twin of the checkout webhook.
// Both paths converge on the same record and grant.
func (p *Processor) ConfirmCheckoutSuccess(
	ctx context.Context,
	sessionID string,
) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("confirm checkout: session_id required: %w", core.ErrInvalidInput)
	}

	s, err := p.Authority.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("confirm checkout: %w", err)
	}
	if s.PaymentStatus != "paid" {
		return "", fmt.Errorf("confirm checkout %s: %w", sessionID, ErrPaymentIncomplete)
	}

	userID := s.Metadata["user_id"]
	if userID == "" {
		return "", fmt.Errorf("confirm checkout %s: %w", sessionID, ErrInvalidSession)
	}

	u, err := p.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	tier := u.Tier
	if s.SubscriptionID != "" {
		tier, err = p.tierForSubscription(ctx, s.SubscriptionID)
		if err != nil {
			return "", err
		}
	}

	if _, err := p.activate(ctx, u, s.CustomerID, s.SubscriptionID, tier); err != nil {
		return "", err
	}

	return userID, nil
}

// activate marks the member paid and grants the tier's libraries when a
// Plex account is linked.
func (p *Processor) activate(
	ctx context.Context,
	u *user.User,
	customerID, subscriptionID string,
	tier access.Tier,
) (*user.User, error) {
	if u.IsAdmin() {
		slog.Warn("paid checkout for admin member left unchanged", "user_id", u.ID)
		return u, nil
	}

	patch := user.UserPatch{
		SubscriptionStatus: user.Set(user.StatusActive),
		Tier:               user.Set(tier),
	}
	if customerID != "" {
		patch.StripeCustomerID = user.Set(customerID)
	}
	if subscriptionID != "" {
		patch.StripeSubscriptionID = user.Set(subscriptionID)
	}

	updated, err := p.Users.Patch(ctx, u.ID, patch)
	if err != nil {
		return nil, err
	}

	if !updated.HasPlexID() {
		p.Ledger.Record(ctx, updated.ID, "plex_invite_skipped", "No plex_user_id found for user")
		return updated, nil
	}

	if _, err := p.Access.ApplyTier(ctx, updated.Member(), tier); err != nil {
		slog.Error("granting library access failed",
			"user_id", updated.ID,
			"tier", tier,
			"error", err,
		)
	}

	return updated, nil
}

func (p *Processor) tierForSubscription(
	ctx context.Context,
	subscriptionID string,
) (access.Tier, error) {
	if subscriptionID == "" {
		return access.TierHD, nil
	}
	sub, err := p.Authority.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return "", fmt.Errorf("resolve tier: %w", err)
	}
	return p.Plans.TierForPrice(sub.PriceID), nil
}

// memberForCustomer returns nil when the customer is unknown or the member
// is admin-managed; both are acknowledged without change.
func (p *Processor) memberForCustomer(
	ctx context.Context,
	customerID, eventType string,
) (*user.User, error) {
	if customerID == "" {
		return nil, nil
	}
	u, err := p.Users.GetByCustomerID(ctx, customerID)
	if isNotFound(err) {
		slog.Info("billing event for unknown customer",
			"customer_id", customerID,
			"type", eventType,
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		slog.Info("billing event for admin member ignored",
			"user_id", u.ID,
			"type", eventType,
		)
		return nil, nil
	}
	return u, nil
}

// isStale reports whether sub is a terminal event for a subscription the
// member has since replaced.
func isStale(u *user.User, sub *Subscription, terminal bool) bool {
	return terminal &&
		u.HasSubscription() &&
		*u.StripeSubscriptionID != sub.ID
}

func (p *Processor) subscriptionChanged(ctx context.Context, sub *Subscription) error {
	u, err := p.memberForCustomer(ctx, sub.CustomerID, EventSubscriptionUpdated)
	if err != nil || u == nil {
		return err
	}

	status, known := MapStatus(sub.Status)
	if isStale(u, sub, known && status == user.StatusCancelled) {
		slog.Info("ignoring update for replaced subscription",
			"user_id", u.ID,
			"subscription_id", sub.ID,
		)
		return nil
	}

	patch := user.UserPatch{StripeSubscriptionID: user.Set(sub.ID)}
	if known {
		patch.SubscriptionStatus = user.Set(status)
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		patch.CurrentPeriodEnd = user.Set(sub.CurrentPeriodEnd)
	}

	_, err = p.Users.Patch(ctx, u.ID, patch)
	return err
}

func (p *Processor) subscriptionDeleted(ctx context.Context, sub *Subscription) error {
	u, err := p.memberForCustomer(ctx, sub.CustomerID, EventSubscriptionDeleted)
	if err != nil || u == nil {
		return err
	}

	if isStale(u, sub, true) {
		slog.Info("ignoring deletion of replaced subscription",
			"user_id", u.ID,
			"subscription_id", sub.ID,
		)
		return nil
	}

	if _, err := p.Users.Patch(ctx, u.ID, user.UserPatch{
		SubscriptionStatus: user.Set(user.StatusCancelled),
	}); err != nil {
		return err
	}

	if !u.HasPlexID() {
		p.Ledger.Record(ctx, u.ID, "subscription_cancelled",
			"Subscription cancelled (no Plex ID to remove)")
		return nil
	}

	if _, err := p.Access.Remove(ctx, u.Member()); err != nil {
		slog.Error("revoking access after cancellation failed",
			"user_id", u.ID,
			"plex_user_id", *u.PlexUserID,
			"error", err,
		)
	}

	return nil
}

func (p *Processor) paymentFailed(ctx context.Context, inv *Invoice) error {
	u, err := p.memberForCustomer(ctx, inv.CustomerID, EventPaymentFailed)
	if err != nil || u == nil {
		return err
	}

	if _, err := p.Users.Patch(ctx, u.ID, user.UserPatch{
		SubscriptionStatus: user.Set(user.StatusPastDue),
	}); err != nil {
		return err
	}

	p.Ledger.Record(ctx, u.ID, "payment_failed",
		fmt.Sprintf("Payment failed for invoice %s", inv.ID))
	return nil
}
