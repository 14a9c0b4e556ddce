// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/core"
)

// AccessManager is the part of the access service the admin surface drives.
type AccessManager interface {
	ApplyTier(ctx context.Context, m access.Member, tier access.Tier) (access.Outcome, error)
	Remove(ctx context.Context, m access.Member) (access.Removal, error)
}

type Ledger interface {
	Record(ctx context.Context, userID, action, details string)
}

type Service struct {
	repo   Repository
	access AccessManager
	ledger Ledger
}

func NewService(repo Repository, am AccessManager, ledger Ledger) *Service {
	return &Service{repo: repo, access: am, ledger: ledger}
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) CreateUser(
	ctx context.Context,
	req CreateUserRequest,
) (*User, error) {
	tier := access.TierHD
	if req.Tier != "" {
		t, err := access.ParseTier(req.Tier)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		tier = t
	}

	plexUsername := req.PlexUsername
	u := &User{
		ID:                 uuid.New().String(),
		DisplayName:        req.DisplayName,
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		PlexUsername:       &plexUsername,
		Tier:               tier,
		SubscriptionStatus: StatusPending,
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.ledger.Record(ctx, u.ID, "user_created",
		fmt.Sprintf("User %s created", u.DisplayName))

	return u, nil
}

// UpdateUser applies operator edits. Tier edits on a member with a live
// subscription, or into or out of admin, must go through the billing path.
func (s *Service) UpdateUser(
	ctx context.Context,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	var patch UserPatch
	if req.DisplayName != nil {
		patch.DisplayName = Set(*req.DisplayName)
	}
	if req.Email != nil {
		patch.Email = Set(strings.ToLower(strings.TrimSpace(*req.Email)))
	}
	if req.PlexUsername != nil {
		patch.PlexUsername = Set(*req.PlexUsername)
	}
	patch.PlexUserID = req.PlexUserID.field()

	var newTier access.Tier
	if req.Tier != nil {
		t, err := access.ParseTier(*req.Tier)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		newTier = t
		patch.Tier = Set(t)
	}

	if patch.IsEmpty() {
		return nil, fmt.Errorf("update user: no valid fields to update: %w", core.ErrInvalidInput)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tierChanged := newTier != "" && newTier != current.Tier
	if tierChanged && current.HasSubscription() {
		return nil, fmt.Errorf(
			"update user: tier of a subscribed member changes through the subscription: %w",
			core.ErrConflict,
		)
	}
	if tierChanged && (current.IsAdmin() || newTier.IsAdmin()) {
		return nil, fmt.Errorf(
			"update user: admin tier changes through PUT /users/{id}/tier: %w",
			core.ErrConflict,
		)
	}

	updated, err := s.repo.Patch(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if tierChanged && updated.HasPlexID() && (updated.IsActive() || updated.IsAdmin()) {
		if _, err := s.access.ApplyTier(ctx, updated.Member(), updated.Tier); err != nil {
			slog.Warn("tier access update failed",
				"user_id", updated.ID,
				"tier", updated.Tier,
				"error", err,
			)
		}
	}

	return updated, nil
}

// DeleteUser removes the member from the library server before deleting the
// record. Removal failures do not block the delete.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if u.HasPlexID() {
		if _, err := s.access.Remove(ctx, u.Member()); err != nil {
			slog.Error("plex removal during delete failed",
				"user_id", u.ID,
				"plex_user_id", *u.PlexUserID,
				"error", err,
			)
		}
	}

	return s.repo.Delete(ctx, id)
}

// KickUser revokes the member's library access and unlinks their Plex id.
func (s *Service) KickUser(ctx context.Context, id string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !u.HasPlexID() {
		return fmt.Errorf("kick user: user has no plex id to kick: %w", core.ErrInvalidInput)
	}
	if u.IsAdmin() {
		return fmt.Errorf("kick user: admin members are exempt: %w", core.ErrForbidden)
	}

	if _, err := s.access.Remove(ctx, u.Member()); err != nil {
		return fmt.Errorf("kick user: %w", err)
	}

	if _, err := s.repo.Patch(ctx, id, UserPatch{
		SubscriptionStatus: Set(StatusKicked),
		PlexUserID:         Null[string](),
	}); err != nil {
		return err
	}

	s.ledger.Record(ctx, id, "manual_kick", "Manually kicked from Plex by admin")

	return nil
}
