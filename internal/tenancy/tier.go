// Package tenancy defines organization tiers. A tier governs exactly three
// things: the device quota, whether the org may mint enrollment tokens, and
// which enrollment flow its endpoints use.
package tenancy

import (
	"fmt"
	"strings"
)

// Tier identifies an organization tier.
type Tier string

const (
	TierPersonalFree Tier = "personal_free"
	TierPersonalPro  Tier = "personal_pro"
	TierOrganization Tier = "organization"
)

// DefaultTier is assigned at organization creation.
const DefaultTier = TierPersonalFree

// Limits defines what a tier permits.
type Limits struct {
	MaxDevices     int // 0 = the org's own max_agents field governs
	CanMintTokens  bool
	PersonalEnroll bool
	OrgEnroll      bool
}

var tierLimits = map[Tier]Limits{
	TierPersonalFree: {
		MaxDevices:     1,
		CanMintTokens:  false,
		PersonalEnroll: true,
		OrgEnroll:      false,
	},
	TierPersonalPro: {
		MaxDevices:     10,
		CanMintTokens:  false,
		PersonalEnroll: true,
		OrgEnroll:      false,
	},
	TierOrganization: {
		MaxDevices:     0,
		CanMintTokens:  true,
		PersonalEnroll: false,
		OrgEnroll:      true,
	},
}

// Parse normalizes a stored or supplied tier string. "enterprise" is a
// legacy alias of organization, accepted on read and never written back.
func Parse(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPersonalFree:
		return TierPersonalFree, nil
	case TierPersonalPro:
		return TierPersonalPro, nil
	case TierOrganization, Tier("enterprise"):
		return TierOrganization, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// LimitsFor returns the limits for a tier. Unknown tiers get the most
// restrictive limits.
func LimitsFor(t Tier) Limits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierPersonalFree]
}

// MaxDevices resolves the device quota for an org: the tier's fixed quota,
// or the org's max_agents field for organization tier.
func MaxDevices(t Tier, orgMaxAgents int) int {
	l := LimitsFor(t)
	if l.MaxDevices > 0 {
		return l.MaxDevices
	}
	return orgMaxAgents
}

// IsPersonal reports whether a tier uses the personal enrollment flow.
func IsPersonal(t Tier) bool {
	return LimitsFor(t).PersonalEnroll
}
