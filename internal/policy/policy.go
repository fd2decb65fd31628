package policy

import (
	"fmt"
	"sort"
	"time"
)

// Tier maps a notice threshold to a refund: a cancellation with less than
// HoursBefore hours of notice gets RefundPercent back.
type Tier struct {
	HoursBefore   float64 `json:"hours_before"`
	RefundPercent int     `json:"refund_percent"`
}

// Policy is pure data, applied and never mutated during cancellation.
// Tiers are evaluated most-restrictive first (ascending threshold); a
// cancellation with more notice than every tier gets DefaultRefundPercent.
type Policy struct {
	Tiers                []Tier `json:"tiers"`
	DefaultRefundPercent int    `json:"default_refund_percent"`
}

// Default is the ruleset used when a provider has no stored policy:
// under 2h notice forfeits everything, under 24h refunds half, otherwise
// the full amount comes back.
func Default() Policy {
	return Policy{
		Tiers: []Tier{
			{HoursBefore: 2, RefundPercent: 0},
			{HoursBefore: 24, RefundPercent: 50},
		},
		DefaultRefundPercent: 100,
	}
}

// Normalize returns a copy with tiers sorted ascending by threshold.
func (p Policy) Normalize() Policy {
	tiers := make([]Tier, len(p.Tiers))
	copy(tiers, p.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].HoursBefore < tiers[j].HoursBefore })
	return Policy{Tiers: tiers, DefaultRefundPercent: p.DefaultRefundPercent}
}

// Validate enforces refund monotonicity: less notice never refunds more.
func (p Policy) Validate() error {
	n := p.Normalize()
	prev := -1
	for _, t := range n.Tiers {
		if t.HoursBefore < 0 {
			return fmt.Errorf("tier threshold %.1fh is negative", t.HoursBefore)
		}
		if t.RefundPercent < 0 || t.RefundPercent > 100 {
			return fmt.Errorf("tier refund %d%% out of range", t.RefundPercent)
		}
		if t.RefundPercent < prev {
			return fmt.Errorf("refund must not decrease with notice (tier %.1fh)", t.HoursBefore)
		}
		prev = t.RefundPercent
	}
	if p.DefaultRefundPercent < prev || p.DefaultRefundPercent > 100 {
		return fmt.Errorf("default refund %d%% breaks monotonicity", p.DefaultRefundPercent)
	}
	return nil
}

// RefundFor selects the refund for a cancellation made notice ahead of the
// appointment start. First matching threshold wins, walking from the most
// restrictive tier up.
func (p Policy) RefundFor(notice time.Duration) int {
	hours := notice.Hours()
	if hours < 0 {
		hours = 0
	}
	for _, t := range p.Normalize().Tiers {
		if hours < t.HoursBefore {
			return t.RefundPercent
		}
	}
	return p.DefaultRefundPercent
}
