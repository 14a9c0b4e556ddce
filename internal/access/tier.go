// AngelaMos | 2026
// tier.go

package access

import (
	"fmt"
	"slices"
	"strings"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
)

type Tier string

const (
	TierHD    Tier = "hd"
	Tier4K    Tier = "4k"
	TierAdmin Tier = "admin"
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierHD, Tier4K, TierAdmin:
		return t, nil
	default:
		return "", fmt.Errorf(
			"invalid tier %q, must be hd, 4k or admin: %w",
			s,
			core.ErrInvalidInput,
		)
	}
}

func (t Tier) IsAdmin() bool {
	return t == TierAdmin
}

func (t Tier) String() string {
	return string(t)
}

// TierMap is the static tier to library key mapping.
type TierMap struct {
	keys map[Tier][]int
}

func NewTierMap(cfg config.TiersConfig) TierMap {
	return TierMap{
		keys: map[Tier][]int{
			TierHD:    slices.Clone(cfg.HD),
			Tier4K:    slices.Clone(cfg.FourK),
			TierAdmin: slices.Clone(cfg.Admin),
		},
	}
}

// LibraryKeys returns a copy of the keys for tier. Unknown tiers map to
// no libraries.
func (m TierMap) LibraryKeys(tier Tier) []int {
	return slices.Clone(m.keys[tier])
}
