package threshold_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcab/internal/catalog"
	"medcab/internal/threshold"
)

func entryWithLimits(single, daily, warnPct int) catalog.Entry {
	return catalog.Entry{
		ID:   "med-1",
		Name: "Ibuprofen",
		Threshold: &catalog.Threshold{
			SingleDoseLimit:   single,
			DailyLimit:        daily,
			WarningPercentage: warnPct,
		},
	}
}

func TestEvaluate_NoThresholdNeverWarns(t *testing.T) {
	entry := catalog.Entry{ID: "med-1", Name: "Saline"}

	for _, qty := range []int{1, 50, 10000} {
		d := threshold.Evaluate(entry, qty, 9999)
		assert.Equal(t, threshold.Allow, d.Outcome)
		assert.Equal(t, threshold.RuleNone, d.Rule)
		assert.Empty(t, d.Violations)
	}
}

func TestEvaluate_WithinLimitsAllows(t *testing.T) {
	d := threshold.Evaluate(entryWithLimits(4, 100, 80), 2, 10)

	assert.Equal(t, threshold.Allow, d.Outcome)
	assert.Equal(t, 12, d.RunningTotal)
	assert.Empty(t, d.Violations)
}

func TestEvaluate_SingleDoseOverLimit(t *testing.T) {
	// L+1 must be at least HIGH severity.
	d := threshold.Evaluate(entryWithLimits(4, 100, 80), 5, 0)

	require.Len(t, d.Violations, 1)
	assert.Equal(t, threshold.Block, d.Outcome)
	assert.Equal(t, threshold.RuleSingleDose, d.Rule)
	assert.Equal(t, threshold.SeverityHigh, d.Violations[0].Severity)
}

func TestEvaluate_SingleDoseFarOverLimitIsCritical(t *testing.T) {
	// Over 1.5x the limit escalates to CRITICAL.
	d := threshold.Evaluate(entryWithLimits(4, 100, 80), 7, 0)

	require.NotEmpty(t, d.Violations)
	assert.Equal(t, threshold.SeverityCritical, d.Violations[0].Severity)
	assert.Equal(t, threshold.SeverityCritical, d.MaxSeverity())
}

func TestEvaluate_ExactlyOneAndHalfTimesLimitIsHigh(t *testing.T) {
	d := threshold.Evaluate(entryWithLimits(4, 100, 80), 6, 0)

	require.NotEmpty(t, d.Violations)
	assert.Equal(t, threshold.SeverityHigh, d.Violations[0].Severity)
}

func TestEvaluate_DailyLimitExceededBlocks(t *testing.T) {
	d := threshold.Evaluate(entryWithLimits(50, 100, 80), 10, 95)

	assert.Equal(t, threshold.Block, d.Outcome)
	assert.Equal(t, threshold.RuleDailyLimit, d.Rule)
	assert.Equal(t, 105, d.RunningTotal)
}

func TestEvaluate_ApproachingDailyLimitWarns(t *testing.T) {
	// 80% of a 100-unit daily limit fires at running total >= 80.
	d := threshold.Evaluate(entryWithLimits(50, 100, 80), 10, 70)

	assert.Equal(t, threshold.Warn, d.Outcome)
	assert.Equal(t, threshold.RuleDailyApproaching, d.Rule)
	assert.Equal(t, 80, d.RunningTotal)
}

func TestEvaluate_JustBelowWarningPercentageAllows(t *testing.T) {
	d := threshold.Evaluate(entryWithLimits(50, 100, 80), 9, 70)

	assert.Equal(t, threshold.Allow, d.Outcome)
	assert.Equal(t, 79, d.RunningTotal)
}

func TestEvaluate_CumulativeSameDayCallsCrossThresholds(t *testing.T) {
	entry := entryWithLimits(50, 100, 80)

	// Simulate three same-day withdrawals; the caller feeds back the running
	// total as the next call's prior amount.
	prior := 0
	quantities := []int{40, 40, 30}
	var outcomes []threshold.Outcome
	for _, q := range quantities {
		d := threshold.Evaluate(entry, q, prior)
		outcomes = append(outcomes, d.Outcome)
		prior = d.RunningTotal
	}

	assert.Equal(t, []threshold.Outcome{threshold.Allow, threshold.Warn, threshold.Block}, outcomes)
	assert.Equal(t, 110, prior)
}

func TestEvaluate_BothRulesFireMostSevereWins(t *testing.T) {
	// Over the single-dose limit and over the daily limit at once.
	d := threshold.Evaluate(entryWithLimits(4, 10, 80), 8, 5)

	assert.Equal(t, threshold.Block, d.Outcome)
	require.Len(t, d.Violations, 2)
	assert.Equal(t, threshold.RuleSingleDose, d.Violations[0].Rule)
	assert.Equal(t, threshold.RuleDailyLimit, d.Violations[1].Rule)
}

func TestEvaluate_ZeroWarningPercentageUsesDefault(t *testing.T) {
	d := threshold.Evaluate(entryWithLimits(50, 100, 0), 10, 70)

	assert.Equal(t, threshold.Warn, d.Outcome)
}
