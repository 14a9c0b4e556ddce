// AngelaMos | 2026
// breaker.go

package plex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/metrics"
)

const breakerName = "plex-directory"

// BreakerDirectory guards the plex.tv sharing calls with a circuit
// breaker. When the circuit is open calls fail fast with core.ErrUnavailable.
type BreakerDirectory struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
}

func NewBreakerDirectory(
	client *Client,
	cfg config.BreakerConfig,
) *BreakerDirectory {
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 3
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, core.ErrNotFound) ||
				errors.Is(err, core.ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.
				WithLabelValues(name, from.String(), to.String()).
				Inc()
		},
	})

	return &BreakerDirectory{client: client, cb: cb}
}

func (d *BreakerDirectory) execute(fn func() (any, error)) (any, error) {
	result, err := d.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		return nil, fmt.Errorf("%s: %w: %w", breakerName, core.ErrUnavailable, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	return result, err
}

func (d *BreakerDirectory) State() string {
	return d.cb.State().String()
}

// Ping reports the breaker as a readiness dependency without calling Plex.
func (d *BreakerDirectory) Ping(context.Context) error {
	if d.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: circuit open: %w", breakerName, core.ErrUnavailable)
	}
	return nil
}

func (d *BreakerDirectory) ListSections(ctx context.Context) ([]Section, error) {
	res, err := d.execute(func() (any, error) {
		return d.client.ListSections(ctx)
	})
	if err != nil {
		return nil, err
	}
	sections, _ := res.([]Section)
	return sections, nil
}

func (d *BreakerDirectory) GetSharedGrant(
	ctx context.Context,
	plexUserID string,
) (*SharedGrant, error) {
	res, err := d.execute(func() (any, error) {
		return d.client.GetSharedGrant(ctx, plexUserID)
	})
	if err != nil {
		return nil, err
	}
	grant, _ := res.(*SharedGrant)
	return grant, nil
}

func (d *BreakerDirectory) CreateSharedGrant(
	ctx context.Context,
	email string,
	sectionIDs []int64,
) (*SharedGrant, error) {
	res, err := d.execute(func() (any, error) {
		return d.client.CreateSharedGrant(ctx, email, sectionIDs)
	})
	if err != nil {
		return nil, err
	}
	grant, _ := res.(*SharedGrant)
	return grant, nil
}

func (d *BreakerDirectory) UpdateSharedGrant(
	ctx context.Context,
	grantID int64,
	sectionIDs []int64,
) error {
	_, err := d.execute(func() (any, error) {
		return nil, d.client.UpdateSharedGrant(ctx, grantID, sectionIDs)
	})
	return err
}

func (d *BreakerDirectory) DeleteSharedGrant(ctx context.Context, grantID int64) error {
	_, err := d.execute(func() (any, error) {
		return nil, d.client.DeleteSharedGrant(ctx, grantID)
	})
	return err
}

func (d *BreakerDirectory) RemoveFriend(ctx context.Context, plexUserID string) error {
	_, err := d.execute(func() (any, error) {
		return nil, d.client.RemoveFriend(ctx, plexUserID)
	})
	return err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
