package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefundForTierSelection(t *testing.T) {
	p := Default()

	tests := []struct {
		name   string
		notice time.Duration
		want   int
	}{
		{"inside 2h tier", 30 * time.Minute, 0},
		{"exactly 2h falls to next tier", 2 * time.Hour, 50},
		{"inside 24h tier", 10 * time.Hour, 50},
		{"exactly 24h falls to default", 24 * time.Hour, 100},
		{"well ahead", 72 * time.Hour, 100},
		{"after the fact", -time.Hour, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, p.RefundFor(tc.notice))
		})
	}
}

func TestRefundMonotonicity(t *testing.T) {
	p := Default()

	prev := -1
	for h := 0; h <= 100; h++ {
		got := p.RefundFor(time.Duration(h) * time.Hour)
		require.GreaterOrEqual(t, got, prev, "refund decreased at %dh notice", h)
		prev = got
	}
}

func TestRefundForUnsortedTiers(t *testing.T) {
	// Selection must not depend on stored tier order.
	p := Policy{
		Tiers: []Tier{
			{HoursBefore: 48, RefundPercent: 75},
			{HoursBefore: 6, RefundPercent: 25},
		},
		DefaultRefundPercent: 100,
	}

	require.Equal(t, 25, p.RefundFor(3*time.Hour))
	require.Equal(t, 75, p.RefundFor(12*time.Hour))
	require.Equal(t, 100, p.RefundFor(60*time.Hour))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	decreasing := Policy{
		Tiers: []Tier{
			{HoursBefore: 2, RefundPercent: 50},
			{HoursBefore: 24, RefundPercent: 25},
		},
		DefaultRefundPercent: 100,
	}
	require.ErrorContains(t, decreasing.Validate(), "must not decrease")

	badDefault := Policy{
		Tiers:                []Tier{{HoursBefore: 2, RefundPercent: 50}},
		DefaultRefundPercent: 10,
	}
	require.ErrorContains(t, badDefault.Validate(), "default refund")

	outOfRange := Policy{Tiers: []Tier{{HoursBefore: 2, RefundPercent: 150}}}
	require.ErrorContains(t, outOfRange.Validate(), "out of range")
}
