// Package threshold implements the dose-safety evaluator that gates checkout.
// The evaluator is pure: it works on a catalog entry snapshot and the prior
// same-day total supplied by the caller, and performs no I/O.
package threshold

import (
	"fmt"

	"medcab/internal/catalog"
)

// Outcome is the overall evaluation result, ordered by severity.
type Outcome int

const (
	Allow Outcome = iota
	Warn
	Block
)

func (o Outcome) String() string {
	switch o {
	case Warn:
		return "WARN"
	case Block:
		return "BLOCK"
	default:
		return "ALLOW"
	}
}

// Rule identifies which limit fired.
type Rule string

const (
	RuleNone             Rule = "NONE"
	RuleSingleDose       Rule = "SINGLE_DOSE"
	RuleDailyLimit       Rule = "DAILY_LIMIT"
	RuleDailyApproaching Rule = "DAILY_APPROACHING"
)

// Severity grades a triggered rule for the warning record.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Violation is a single triggered rule with its audit message.
type Violation struct {
	Rule     Rule
	Severity Severity
	Message  string
}

// Decision is the evaluation result. Multiple rules can fire; the most
// severe outcome wins, but every triggered rule is retained for audit.
type Decision struct {
	Outcome      Outcome
	Rule         Rule // rule that determined the outcome
	RunningTotal int  // prior same-day total plus this request
	Violations   []Violation
}

// DefaultWarningPercentage applies when a threshold does not set its own.
const DefaultWarningPercentage = 80

// Evaluate checks a requested quantity against the entry's configured
// threshold. priorToday is the sum of quantities already dispensed to the
// same identity for this entry since local midnight; the caller owns that
// aggregation.
func Evaluate(entry catalog.Entry, requested, priorToday int) Decision {
	running := priorToday + requested
	d := Decision{Outcome: Allow, Rule: RuleNone, RunningTotal: running}

	t := entry.Threshold
	if t == nil {
		return d
	}

	if t.SingleDoseLimit > 0 && requested > t.SingleDoseLimit {
		sev := SeverityHigh
		// Over 1.5x the single-dose limit is no longer a borderline request.
		if float64(requested) > float64(t.SingleDoseLimit)*1.5 {
			sev = SeverityCritical
		}
		d.Violations = append(d.Violations, Violation{
			Rule:     RuleSingleDose,
			Severity: sev,
			Message: fmt.Sprintf("single dose limit exceeded: %d units (limit: %d)",
				requested, t.SingleDoseLimit),
		})
		d.Outcome = Block
		d.Rule = RuleSingleDose
	}

	if t.DailyLimit > 0 {
		warnPct := t.WarningPercentage
		if warnPct <= 0 {
			warnPct = DefaultWarningPercentage
		}

		switch {
		case running > t.DailyLimit:
			d.Violations = append(d.Violations, Violation{
				Rule:     RuleDailyLimit,
				Severity: SeverityCritical,
				Message: fmt.Sprintf("daily limit exceeded: %d units today (limit: %d)",
					running, t.DailyLimit),
			})
			if d.Outcome < Block {
				d.Outcome = Block
				d.Rule = RuleDailyLimit
			}
		case running*100 >= t.DailyLimit*warnPct:
			d.Violations = append(d.Violations, Violation{
				Rule:     RuleDailyApproaching,
				Severity: SeverityMedium,
				Message: fmt.Sprintf("approaching daily limit: %d units today (limit: %d)",
					running, t.DailyLimit),
			})
			if d.Outcome < Warn {
				d.Outcome = Warn
				d.Rule = RuleDailyApproaching
			}
		}
	}

	return d
}

// MaxSeverity returns the highest severity among the triggered rules, or
// empty when nothing fired.
func (d Decision) MaxSeverity() Severity {
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4}
	var best Severity
	for _, v := range d.Violations {
		if rank[v.Severity] > rank[best] {
			best = v.Severity
		}
	}
	return best
}
