package plans

import (
	"fmt"
	"strings"
)

// Tier is an ordered plan level. Every gating point compares tiers through
// AtLeast; nothing else should inspect plan strings.
type Tier int

const (
	Basic Tier = iota
	Growth
	Pro
)

// Interval is the recurring-charge billing period.
type Interval string

const (
	Every30Days Interval = "EVERY_30_DAYS"
	Annual      Interval = "ANNUAL"
)

var tierNames = map[Tier]string{
	Basic:  "basic",
	Growth: "growth",
	Pro:    "pro",
}

// monthlyPrice is the fixed per-tier monthly price in USD.
var monthlyPrice = map[Tier]float64{
	Basic:  10.0,
	Growth: 25.0,
	Pro:    50.0,
}

// annualDiscount is taken off twelve months of the monthly price.
const annualDiscount = 0.20

// Parse accepts tier names in any case ("GROWTH", "growth").
func Parse(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return Basic, nil
	case "growth":
		return Growth, nil
	case "pro":
		return Pro, nil
	}
	return Basic, fmt.Errorf("unknown plan tier %q", s)
}

// ParseInterval accepts the two supported billing intervals.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Every30Days), "":
		// Monthly is the default when the caller omits the interval.
		return Every30Days, nil
	case string(Annual):
		return Annual, nil
	}
	return Every30Days, fmt.Errorf("unknown billing interval %q", s)
}

// String returns the lower-cased tier name, which is also the value stored on
// the shop record.
func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return "basic"
}

// DisplayName is the human-facing charge name component, e.g. "Growth Plan".
func (t Tier) DisplayName() string {
	n := t.String()
	return strings.ToUpper(n[:1]) + n[1:] + " Plan"
}

// AtLeast reports whether t grants access to features requiring min.
func (t Tier) AtLeast(min Tier) bool {
	return t >= min
}

// Price returns the recurring charge amount for a tier and interval.
func Price(t Tier, iv Interval) float64 {
	m := monthlyPrice[t]
	if iv == Annual {
		return m * 12 * (1 - annualDiscount)
	}
	return m
}

// ChargeName labels the recurring charge on the merchant's invoice,
// e.g. "Growth Plan (Annual)".
func ChargeName(t Tier, iv Interval) string {
	if iv == Annual {
		return t.DisplayName() + " (Annual)"
	}
	return t.DisplayName() + " (Monthly)"
}
