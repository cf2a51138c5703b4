package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shipfunnel/backend/internal/domain/shared"
)

// DispatchMode controls when pending settlements are dispatched in bulk
type DispatchMode string

const (
	ModeAuto             DispatchMode = "auto"
	ModeManual           DispatchMode = "manual"
	ModeScheduledWeekly  DispatchMode = "scheduled_weekly"
	ModeScheduledMonthly DispatchMode = "scheduled_monthly"
	ModeDisabled         DispatchMode = "disabled"
)

// IsValid reports whether m is a known dispatch mode
func (m DispatchMode) IsValid() bool {
	switch m {
	case ModeAuto, ModeManual, ModeScheduledWeekly, ModeScheduledMonthly, ModeDisabled:
		return true
	}
	return false
}

// Scheduled reports whether m dispatches on a calendar
func (m DispatchMode) Scheduled() bool {
	return m == ModeScheduledWeekly || m == ModeScheduledMonthly
}

// DispatchConfig is the bulk settlement policy
type DispatchConfig struct {
	Mode           DispatchMode           `json:"mode"`
	MinAmountCents map[DispatchMode]int64 `json:"minAmountCents"`
	WeeklyDay      string                 `json:"weeklyDay"`
	MonthlyDay     int                    `json:"monthlyDay"`
	BatchLimit     int                    `json:"batchLimit"`
	UpdatedAt      *time.Time             `json:"updatedAt,omitempty"`
}

// Validate checks the config and returns a validation error describing the first problem
func (c DispatchConfig) Validate() error {
	if !c.Mode.IsValid() {
		return shared.NewValidationError("unknown transfer mode %q", c.Mode).
			WithDetails(map[string]any{"field": "mode"})
	}
	if _, err := ParseWeekday(c.WeeklyDay); err != nil {
		return shared.NewValidationError("%s", err.Error()).
			WithDetails(map[string]any{"field": "weeklyDay"})
	}
	if c.MonthlyDay < 1 || c.MonthlyDay > 28 {
		return shared.NewValidationError("monthly day must be between 1 and 28").
			WithDetails(map[string]any{"field": "monthlyDay"})
	}
	for mode, minCents := range c.MinAmountCents {
		if !mode.IsValid() || minCents < 0 {
			return shared.NewValidationError("invalid minimum for mode %q", mode).
				WithDetails(map[string]any{"field": "minAmountCents"})
		}
	}
	if c.BatchLimit < 1 {
		return shared.NewValidationError("batch limit must be positive").
			WithDetails(map[string]any{"field": "batchLimit"})
	}
	return nil
}

// MinimumCents returns the minimum settlement amount for the active mode
func (c DispatchConfig) MinimumCents() int64 {
	return c.MinAmountCents[c.Mode]
}

// Eligible reports whether a pending amount clears the active minimum
func (c DispatchConfig) Eligible(amountCents int64) bool {
	return amountCents > 0 && amountCents >= c.MinimumCents()
}

// Due reports whether a bulk run may dispatch now. When it may not, the
// reason is returned. force overrides manual and scheduled modes but never
// disabled.
func (c DispatchConfig) Due(now time.Time, force bool) (bool, string) {
	switch c.Mode {
	case ModeDisabled:
		return false, "transfers are disabled"
	case ModeManual:
		if !force {
			return false, "manual mode requires force"
		}
	case ModeScheduledWeekly:
		day, _ := ParseWeekday(c.WeeklyDay)
		if !force && now.Weekday() != day {
			return false, fmt.Sprintf("scheduled for %s", strings.ToLower(day.String()))
		}
	case ModeScheduledMonthly:
		if !force && now.Day() != c.MonthlyDay {
			return false, fmt.Sprintf("scheduled for day %d of the month", c.MonthlyDay)
		}
	}
	return true, ""
}

// ParseWeekday parses a case-insensitive English weekday name
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}
