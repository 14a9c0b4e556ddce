// AngelaMos | 2026
// manager.go

package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/user"
)

// Manager runs subscription changes that a member or operator initiates.
type Manager struct {
	Deps
}

func NewManager(d Deps) *Manager {
	return &Manager{Deps: d}
}

// ApplyTierChange moves a member between the paid tiers. The subscription
// price changes first, then the record, then library access. The admin tier
// is never reachable from here.
func (m *Manager) ApplyTierChange(
	ctx context.Context,
	plexUserID string,
	newTier string,
) (access.Tier, error) {
	if plexUserID == "" || newTier == "" {
		return "", fmt.Errorf("change tier: plex_user_id and new_tier required: %w", core.ErrInvalidInput)
	}
	tier, err := access.ParseTier(newTier)
	if err != nil {
		return "", fmt.Errorf("change tier: %w", err)
	}
	if tier.IsAdmin() {
		return "", fmt.Errorf("change tier: %w", ErrAdminTier)
	}

	u, err := m.Users.GetByPlexUserID(ctx, plexUserID)
	if err != nil {
		return "", err
	}
	if u.IsAdmin() {
		return "", fmt.Errorf("change tier %s: %w", u.ID, ErrAdminTier)
	}

	if err := m.changePaidTier(ctx, u, tier); err != nil {
		return "", err
	}
	return tier, nil
}

// AssignTier is the operator path. Moving into admin cancels any
// subscription; moving out of admin leaves the member pending with access
// revoked until a checkout confirms payment.
func (m *Manager) AssignTier(
	ctx context.Context,
	userID string,
	newTier string,
) (access.Tier, error) {
	tier, err := access.ParseTier(newTier)
	if err != nil {
		return "", fmt.Errorf("assign tier: %w", err)
	}

	u, err := m.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Tier == tier {
		return tier, nil
	}

	switch {
	case tier.IsAdmin():
		return tier, m.promoteToAdmin(ctx, u)
	case u.IsAdmin():
		return tier, m.demoteFromAdmin(ctx, u, tier)
	default:
		return tier, m.changePaidTier(ctx, u, tier)
	}
}

func (m *Manager) changePaidTier(ctx context.Context, u *user.User, tier access.Tier) error {
	if err := m.changePrice(ctx, u, tier); err != nil {
		return err
	}

	updated, err := m.Users.Patch(ctx, u.ID, user.UserPatch{Tier: user.Set(tier)})
	if err != nil {
		return err
	}

	verb := "Downgraded"
	if tier == access.Tier4K {
		verb = "Upgraded"
	}
	m.Ledger.Record(ctx, updated.ID, "subscription_changed",
		fmt.Sprintf("%s to %s plan (%d libraries)", verb, tier, len(m.Tiers.LibraryKeys(tier))))

	m.applyAccess(ctx, updated, tier)
	return nil
}

func (m *Manager) promoteToAdmin(ctx context.Context, u *user.User) error {
	patch := user.UserPatch{
		Tier:               user.Set(access.TierAdmin),
		SubscriptionStatus: user.Set(user.StatusActive),
	}
	if u.HasSubscription() {
		if err := m.Authority.CancelSubscription(ctx, *u.StripeSubscriptionID); err != nil && !isNotFound(err) {
			return fmt.Errorf("assign admin %s: %w", u.ID, err)
		}
		patch.StripeSubscriptionID = user.Null[string]()
		m.Ledger.Record(ctx, u.ID, "subscription_cancelled",
			"Subscription cancelled on switch to admin")
	}

	updated, err := m.Users.Patch(ctx, u.ID, patch)
	if err != nil {
		return err
	}

	m.Ledger.Record(ctx, updated.ID, "subscription_changed",
		fmt.Sprintf("Set to admin plan (%d libraries)", len(m.Tiers.LibraryKeys(access.TierAdmin))))

	m.applyAccess(ctx, updated, access.TierAdmin)
	return nil
}

func (m *Manager) demoteFromAdmin(ctx context.Context, u *user.User, tier access.Tier) error {
	updated, err := m.Users.Patch(ctx, u.ID, user.UserPatch{
		Tier:               user.Set(tier),
		SubscriptionStatus: user.Set(user.StatusPending),
	})
	if err != nil {
		return err
	}

	m.Ledger.Record(ctx, updated.ID, "subscription_changed",
		fmt.Sprintf("Admin removed; %s plan pending checkout", tier))

	if !updated.HasPlexID() {
		return nil
	}
	if _, err := m.Access.Revoke(ctx, updated.Member()); err != nil {
		m.Ledger.Record(ctx, updated.ID, "library_update_failed",
			"Failed to revoke Plex library access after admin removal")
		slog.Error("admin removal revoke failed",
			"user_id", updated.ID,
			"error", err,
		)
	}
	return nil
}

func (m *Manager) applyAccess(ctx context.Context, u *user.User, tier access.Tier) {
	if !u.HasPlexID() {
		return
	}
	if _, err := m.Access.ApplyTier(ctx, u.Member(), tier); err != nil {
		m.Ledger.Record(ctx, u.ID, "library_update_failed",
			fmt.Sprintf("Failed to update Plex library access for %s tier", tier))
		slog.Error("tier change access update failed",
			"user_id", u.ID,
			"tier", tier,
			"error", err,
		)
	}
}

// Owns reports an error unless the signed-in account authID holds the
// membership of plexUserID.
func (m *Manager) Owns(ctx context.Context, authID, plexUserID string) error {
	if authID == "" {
		return fmt.Errorf("owner check: %w", core.ErrUnauthorized)
	}
	u, err := m.Users.GetByAuthID(ctx, authID)
	if isNotFound(err) {
		return fmt.Errorf("owner check: %w", ErrNotOwner)
	}
	if err != nil {
		return err
	}
	if u.PlexUserID == nil || *u.PlexUserID != plexUserID {
		return fmt.Errorf("owner check %s: %w", u.ID, ErrNotOwner)
	}
	return nil
}

func (m *Manager) changePrice(ctx context.Context, u *user.User, tier access.Tier) error {
	if !u.HasSubscription() {
		return fmt.Errorf("change tier: %w", ErrNoSubscription)
	}

	sub, err := m.Authority.GetSubscription(ctx, *u.StripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("change tier: %w", err)
	}
	if sub.Status != "active" {
		return fmt.Errorf("change tier: %w", ErrSubscriptionInactive)
	}

	price, err := m.Plans.PriceForTier(tier)
	if err != nil {
		return fmt.Errorf("change tier: %w", err)
	}

	if err := m.Authority.UpdateSubscriptionPrice(ctx, sub, price); err != nil {
		return fmt.Errorf("change tier: %w", err)
	}
	return nil
}

// ApplyCancellation ends a member's subscription immediately and removes
// their library access. Admin members are rejected before any side effect.
func (m *Manager) ApplyCancellation(ctx context.Context, plexUserID string) error {
	if plexUserID == "" {
		return fmt.Errorf("cancel: plex_user_id required: %w", core.ErrInvalidInput)
	}

	u, err := m.Users.GetByPlexUserID(ctx, plexUserID)
	if err != nil {
		return err
	}

	if u.IsAdmin() {
		return fmt.Errorf("cancel %s: %w", u.ID, ErrAdminExempt)
	}
	if !u.HasSubscription() {
		return fmt.Errorf("cancel %s: %w", u.ID, ErrNoSubscription)
	}

	if err := m.Authority.CancelSubscription(ctx, *u.StripeSubscriptionID); err != nil && !isNotFound(err) {
		return fmt.Errorf("cancel %s: %w", u.ID, err)
	}

	if _, err := m.Users.Patch(ctx, u.ID, user.UserPatch{
		SubscriptionStatus: user.Set(user.StatusCancelled),
	}); err != nil {
		return err
	}

	if u.HasPlexID() {
		if _, err := m.Access.Remove(ctx, u.Member()); err != nil {
			slog.Error("revoking access after cancellation failed",
				"user_id", u.ID,
				"error", err,
			)
		}
	}

	m.Ledger.Record(ctx, u.ID, "subscription_cancelled", "Subscription cancelled by user")
	return nil
}

type SignupRequest struct {
	PlexUserID   string `json:"plex_user_id"  validate:"required,max=64"`
	PlexUsername string `json:"plex_username" validate:"required,max=100"`
	PlexEmail    string `json:"plex_email"    validate:"required,email,max=255"`
}

type SignupResult struct {
	CheckoutURL string `json:"checkout_url"`
	UserID      string `json:"user_id"`
}

// Signup finds or creates the member for a Plex account and opens a
// checkout session on the default plan.
func (m *Manager) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	u, err := m.Users.GetByPlexUserID(ctx, req.PlexUserID)
	switch {
	case err == nil:
		if u.IsActive() {
			return nil, fmt.Errorf("signup: %w", ErrAlreadySubscribed)
		}
	case isNotFound(err):
		plexID := req.PlexUserID
		plexUsername := req.PlexUsername
		u = &user.User{
			ID:                 uuid.New().String(),
			DisplayName:        req.PlexUsername,
			Email:              strings.ToLower(strings.TrimSpace(req.PlexEmail)),
			PlexUsername:       &plexUsername,
			PlexUserID:         &plexID,
			Tier:               access.TierHD,
			SubscriptionStatus: user.StatusPending,
		}
		if err := m.Users.Create(ctx, u); err != nil {
			return nil, err
		}
		m.Ledger.Record(ctx, u.ID, "user_signed_up",
			fmt.Sprintf("User %s signed up via Plex", req.PlexUsername))
	default:
		return nil, err
	}

	customerID, err := m.ensureCustomer(ctx, u, map[string]string{
		"user_id":      u.ID,
		"plex_user_id": req.PlexUserID,
	})
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(m.Plans.FrontendURL, "/")
	sess, err := m.Authority.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    m.Plans.defaultPrice(),
		SuccessURL: base + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/signup?cancelled=true",
		Metadata:   map[string]string{"user_id": u.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	return &SignupResult{CheckoutURL: sess.URL, UserID: u.ID}, nil
}

// CreateCheckout opens an operator-initiated checkout for an existing
// member. An empty priceID uses the default plan.
func (m *Manager) CreateCheckout(ctx context.Context, userID, priceID string) (string, error) {
	u, err := m.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	if priceID == "" {
		priceID = m.Plans.defaultPrice()
	}

	customerID, err := m.ensureCustomer(ctx, u, map[string]string{"user_id": u.ID})
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(m.Plans.FrontendURL, "/")
	sess, err := m.Authority.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: base + "?checkout=success",
		CancelURL:  base + "?checkout=cancelled",
		Metadata:   map[string]string{"user_id": u.ID},
	})
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}

	return sess.URL, nil
}

func (m *Manager) ensureCustomer(
	ctx context.Context,
	u *user.User,
	metadata map[string]string,
) (string, error) {
	if u.StripeCustomerID != nil && *u.StripeCustomerID != "" {
		return *u.StripeCustomerID, nil
	}

	customerID, err := m.Authority.CreateCustomer(ctx, CustomerParams{
		Email:    u.Email,
		Name:     u.DisplayName,
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if _, err := m.Users.Patch(ctx, u.ID, user.UserPatch{
		StripeCustomerID: user.Set(customerID),
	}); err != nil {
		return "", err
	}

	return customerID, nil
}

type StatusView struct {
	SubscriptionStatus *string    `json:"subscription_status"`
	Tier               string     `json:"tier,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
}

// SubscriptionStatus reports a member's plan by Plex id. Unknown members
// get a null status rather than an error.
func (m *Manager) SubscriptionStatus(ctx context.Context, plexUserID string) (*StatusView, error) {
	if plexUserID == "" {
		return nil, fmt.Errorf("subscription status: plex_user_id required: %w", core.ErrInvalidInput)
	}

	u, err := m.Users.GetByPlexUserID(ctx, plexUserID)
	if isNotFound(err) {
		return &StatusView{}, nil
	}
	if err != nil {
		return nil, err
	}

	status := u.SubscriptionStatus
	return &StatusView{
		SubscriptionStatus: &status,
		Tier:               u.Tier.String(),
		CurrentPeriodEnd:   u.CurrentPeriodEnd,
	}, nil
}
