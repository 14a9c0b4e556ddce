// AngelaMos | 2026
// service.go

package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deez125/novix-gateway/internal/auth"
	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/user"
)

const (
	codeDigits       = 4
	maxCodeAttempts  = 10
	defaultCodeTTL   = 15 * time.Minute
	defaultInterval  = 5 * time.Second
	verificationPath = "/link"
)

var (
	ErrCodeExpired   = fmt.Errorf("code expired: %w", core.ErrGone)
	ErrCodeUsed      = fmt.Errorf("code already used: %w", core.ErrConflict)
	ErrCodeExhausted = fmt.Errorf("no free device code: %w", core.ErrUnavailable)
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByAuthID(ctx context.Context, authID string) (*user.User, error)
}

type TokenIssuer interface {
	Issue(claims auth.DeviceClaims) (string, error)
}

type Ledger interface {
	Record(ctx context.Context, userID, action, details string)
}

type Service struct {
	repo            Repository
	users           UserLookup
	tokens          TokenIssuer
	ledger          Ledger
	codeTTL         time.Duration
	interval        time.Duration
	verificationURL string
	now             func() time.Time
}

func NewService(
	repo Repository,
	users UserLookup,
	tokens TokenIssuer,
	ledger Ledger,
	cfg config.DeviceConfig,
	frontendURL string,
) *Service {
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Service{
		repo:            repo,
		users:           users,
		tokens:          tokens,
		ledger:          ledger,
		codeTTL:         ttl,
		interval:        interval,
		verificationURL: strings.TrimRight(frontendURL, "/") + verificationPath,
		now:             time.Now,
	}
}

func (s *Service) GenerateCode(ctx context.Context) (*CodeResponse, error) {
	now := s.now()

	for range maxCodeAttempts {
		code, err := core.GenerateNumericCode(codeDigits)
		if err != nil {
			return nil, err
		}

		inUse, err := s.repo.CodeInUse(ctx, code, now)
		if err != nil {
			return nil, err
		}
		if inUse {
			slog.DebugContext(ctx, "device code collision", "code", code)
			continue
		}

		c := &Code{
			ID:        uuid.New().String(),
			Code:      code,
			ExpiresAt: now.Add(s.codeTTL),
		}
		if err := s.repo.CreateCode(ctx, c); err != nil {
			return nil, err
		}

		return &CodeResponse{
			Code:            code,
			VerificationURL: s.verificationURL,
			ExpiresIn:       int(s.codeTTL.Seconds()),
			Interval:        int(s.interval.Seconds()),
		}, nil
	}

	return nil, ErrCodeExhausted
}

func (s *Service) Poll(ctx context.Context, code string) (*PollResponse, error) {
	if code == "" {
		return nil, fmt.Errorf("code parameter required: %w", core.ErrInvalidInput)
	}

	c, err := s.repo.GetCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if c.Expired(now) {
		return nil, ErrCodeExpired
	}

	if !c.Paired() {
		return &PollResponse{
			Activated: false,
			ExpiresIn: int(c.ExpiresAt.Sub(now).Seconds()),
		}, nil
	}

	resp := &PollResponse{
		Activated: true,
		AuthToken: *c.AuthToken,
	}

	if c.UserID != nil {
		p, err := s.profile(ctx, *c.UserID)
		if err != nil {
			slog.ErrorContext(ctx, "load paired profile",
				"user_id", *c.UserID,
				"error", err,
			)
		} else {
			resp.User = &p.User
			resp.PlexConnection = p.PlexConnection
			resp.IPTVConnection = p.IPTVConnection
		}
	}

	return resp, nil
}

// Activate binds code to the member signed in with authID and mints the
// device token the TV collects on its next poll.
func (s *Service) Activate(ctx context.Context, authID, code string) error {
	if code == "" {
		return fmt.Errorf("code required: %w", core.ErrInvalidInput)
	}
	if authID == "" {
		return core.ErrUnauthorized
	}

	u, err := s.users.GetByAuthID(ctx, authID)
	if err != nil {
		return err
	}

	err = s.repo.Activate(ctx, code, func(c *Code) error {
		if c.Expired(s.now()) {
			return ErrCodeExpired
		}
		if c.Activated {
			return ErrCodeUsed
		}

		token, err := s.tokens.Issue(auth.DeviceClaims{
			UserID:   u.ID,
			Tier:     string(u.Tier),
			DeviceID: c.ID,
		})
		if err != nil {
			return fmt.Errorf("issue device token: %w", err)
		}

		c.UserID = &u.ID
		c.AuthToken = &token
		return nil
	})
	if err != nil {
		return err
	}

	s.ledger.Record(ctx, u.ID, "device_activated",
		fmt.Sprintf("TV device paired with code %s", code))
	return nil
}

// Me returns what a paired TV needs to start up, re-read on every call so
// tier and connection changes reach the device.
func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	return s.profile(ctx, userID)
}

func (s *Service) profile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		User: ProfileUser{
			ID:                 u.ID,
			Email:              u.Email,
			SubscriptionTier:   string(u.Tier),
			SubscriptionStatus: u.SubscriptionStatus,
		},
	}

	pc, err := s.repo.GetPlexConnection(ctx, userID)
	switch {
	case err == nil:
		p.PlexConnection = pc
	case !errors.Is(err, core.ErrNotFound):
		slog.ErrorContext(ctx, "load plex connection", "user_id", userID, "error", err)
	}

	ic, err := s.repo.GetIPTVConnection(ctx, userID)
	switch {
	case err == nil:
		p.IPTVConnection = ic
	case !errors.Is(err, core.ErrNotFound):
		slog.ErrorContext(ctx, "load iptv connection", "user_id", userID, "error", err)
	}

	return p, nil
}

func (s *Service) SavePlexConnection(
	ctx context.Context,
	authID string,
	req PlexConnectionRequest,
) (*PlexConnection, error) {
	u, err := s.users.GetByAuthID(ctx, authID)
	if err != nil {
		return nil, err
	}

	pc := &PlexConnection{
		UserID:       u.ID,
		PlexUserID:   req.PlexUserID,
		PlexUsername: req.PlexUsername,
		PlexEmail:    strings.ToLower(req.PlexEmail),
		PlexToken:    req.PlexToken,
	}
	if err := s.repo.UpsertPlexConnection(ctx, pc); err != nil {
		return nil, err
	}
	return pc, nil
}

func (s *Service) SaveIPTVConnection(
	ctx context.Context,
	authID string,
	req IPTVConnectionRequest,
) (*IPTVConnection, error) {
	if missing := req.missingFields(); len(missing) > 0 {
		return nil, fmt.Errorf(
			"%s connection requires %s: %w",
			req.ConnectionType,
			strings.Join(missing, ", "),
			core.ErrInvalidInput,
		)
	}

	u, err := s.users.GetByAuthID(ctx, authID)
	if err != nil {
		return nil, err
	}

	ic := &IPTVConnection{
		UserID:         u.ID,
		ProviderName:   req.ProviderName,
		ConnectionType: req.ConnectionType,
	}
	if req.ConnectionType == ConnectionM3U {
		ic.M3UURL = req.M3UURL
	} else {
		ic.XtreamHost = req.XtreamHost
		ic.XtreamUsername = req.XtreamUsername
		ic.XtreamPassword = req.XtreamPassword
	}

	if err := s.repo.UpsertIPTVConnection(ctx, ic); err != nil {
		return nil, err
	}
	return ic, nil
}
