// AngelaMos | 2026
// translator.go

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deez125/novix-gateway/internal/metrics"
	"github.com/deez125/novix-gateway/internal/plex"
)

var ErrDirectoryUnavailable = errors.New("section directory unavailable")

type SectionLister interface {
	ListSections(ctx context.Context) ([]plex.Section, error)
}

// Resolution is the outcome of mapping library keys onto section ids.
type Resolution struct {
	SectionIDs []int64
	Missing    []int
	Degraded   bool
}

type Translator struct {
	dir   SectionLister
	tiers TierMap
}

func NewTranslator(dir SectionLister, tiers TierMap) *Translator {
	return &Translator{dir: dir, tiers: tiers}
}

func (t *Translator) ResolveTier(ctx context.Context, tier Tier) ([]int64, error) {
	return t.ResolveKeys(ctx, t.tiers.LibraryKeys(tier))
}

func (t *Translator) ResolveKeys(ctx context.Context, keys []int) ([]int64, error) {
	res, err := t.Resolve(ctx, keys)
	if err != nil {
		return nil, err
	}
	return res.SectionIDs, nil
}

// Resolve fetches the section directory and emits the id of every wanted
// key that the directory knows, in directory order. The directory is
// fetched on every call. Keys absent from the directory are reported in
// Missing, never as an error.
func (t *Translator) Resolve(ctx context.Context, keys []int) (Resolution, error) {
	if len(keys) == 0 {
		return Resolution{SectionIDs: []int64{}}, nil
	}

	sections, err := t.dir.ListSections(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	want := make(map[int]bool, len(keys))
	for _, k := range keys {
		want[k] = false
	}

	ids := make([]int64, 0, len(keys))
	for _, s := range sections {
		seen, ok := want[s.Key]
		if !ok || seen {
			continue
		}
		want[s.Key] = true
		ids = append(ids, s.ID)
	}

	var missing []int
	for _, k := range keys {
		if !want[k] {
			missing = append(missing, k)
			want[k] = true
		}
	}
	if len(missing) > 0 {
		metrics.TranslatorDroppedKeys.Add(float64(len(missing)))
	}

	return Resolution{SectionIDs: ids, Missing: missing}, nil
}

// ResolveTierOrFallback resolves tier and, when the directory cannot be
// reached, treats the library keys themselves as section ids. The result
// is flagged Degraded so callers can record it.
func (t *Translator) ResolveTierOrFallback(
	ctx context.Context,
	tier Tier,
) (Resolution, error) {
	keys := t.tiers.LibraryKeys(tier)

	res, err := t.Resolve(ctx, keys)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrDirectoryUnavailable) {
		return Resolution{}, err
	}

	slog.Warn("section directory unavailable, using library keys as section ids",
		"tier", tier,
		"keys", keys,
		"error", err,
	)
	metrics.TranslatorFallbacks.Inc()

	return Resolution{SectionIDs: FallbackSectionIDs(keys), Degraded: true}, nil
}

func FallbackSectionIDs(keys []int) []int64 {
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, int64(k))
	}
	return ids
}
