package commission

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CumulativeMode selects how the reporting percentage numerator accumulates.
type CumulativeMode string

const (
	// CumulativeGlobal keeps one running total across the whole re-sorted table
	// while dividing by each record's own monthly group total. This reproduces
	// the figures of the spreadsheet tool the reports replace.
	CumulativeGlobal CumulativeMode = "global"
	// CumulativePerGroup resets the running total for every (counter, month) group.
	CumulativePerGroup CumulativeMode = "per_group"
)

// Rounding selects the tie-breaking rule for commission amounts and percentages.
type Rounding string

const (
	RoundHalfEven Rounding = "half_even"
	RoundHalfUp   Rounding = "half_up"
)

// Options tunes a calculation. The zero value uses the defaults.
type Options struct {
	CumulativeMode CumulativeMode `json:"cumulative_mode"`
	Rounding       Rounding       `json:"rounding"`
}

// DefaultOptions returns the compatible settings.
func DefaultOptions() Options {
	return Options{CumulativeMode: CumulativeGlobal, Rounding: RoundHalfEven}
}

func (o Options) normalized() Options {
	if o.CumulativeMode == "" {
		o.CumulativeMode = CumulativeGlobal
	}
	if o.Rounding == "" {
		o.Rounding = RoundHalfEven
	}
	return o
}

// ParseCumulativeMode converts configuration text into a CumulativeMode.
func ParseCumulativeMode(value string) (CumulativeMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "global":
		return CumulativeGlobal, nil
	case "per_group", "per-group", "group":
		return CumulativePerGroup, nil
	default:
		return "", fmt.Errorf("unknown cumulative mode %q", value)
	}
}

// ParseRounding converts configuration text into a Rounding.
func ParseRounding(value string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "half_even", "half-even", "bank", "bankers":
		return RoundHalfEven, nil
	case "half_up", "half-up", "away_from_zero":
		return RoundHalfUp, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", value)
	}
}

func (r Rounding) round(d decimal.Decimal, places int32) decimal.Decimal {
	if r == RoundHalfUp {
		return d.Round(places)
	}
	return d.RoundBank(places)
}
