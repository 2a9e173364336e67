/*
classify.go - Maps payment records onto period keys

PURPOSE:
  The payment ledger holds records written under at least two historical
  schemas. Monthly records carry a month; annual records were written with
  no month, with a month range, or with a label such as "2023 - 2024" or
  "Annual maintenance". Classification turns each record into a PeriodKey,
  or into an explicit Unclassified result.

RULE ORDER (first match wins):
  1. no_month      PeriodMonth is nil              -> yearly
  2. month_range   PeriodMonthEnd is set           -> yearly
  3. legacy_label  label has "annual" or " - "     -> yearly
  4. monthly       everything else                 -> monthly

  Before the table runs, a record without PeriodYear is unclassified
  (missing_year). A monthly candidate whose month is outside 1-12 is
  unclassified (invalid_month). Only successful records are classified for
  the paid set (not_settled otherwise).

CONSERVATIVE BIAS:
  An unclassified record never counts as paid. Worst case the tenant sees
  "Pay Now" for a period a cleaner record would have cleared.

SEE ALSO:
  - reconcile.go: Consumes Classification
  - errors.go: UnclassifiablePaymentError
*/
package billing

import (
	"strings"
	"time"
)

// Rule names the classification rule that decided a record.
type Rule string

const (
	RuleNoMonth     Rule = "no_month"
	RuleMonthRange  Rule = "month_range"
	RuleLegacyLabel Rule = "legacy_label"
	RuleMonthly     Rule = "monthly"

	// Unclassified variants
	RuleMissingYear  Rule = "missing_year"
	RuleInvalidMonth Rule = "invalid_month"
	RuleNotSettled   Rule = "not_settled"
)

// Classification is the tagged result of classifying one record. Key is only
// meaningful when Classified() is true.
type Classification struct {
	PaymentID PaymentID
	Key       PeriodKey
	Rule      Rule
}

func (c Classification) Classified() bool {
	switch c.Rule {
	case RuleNoMonth, RuleMonthRange, RuleLegacyLabel, RuleMonthly:
		return true
	}
	return false
}

// Err returns an UnclassifiablePaymentError for unclassified results, nil otherwise.
func (c Classification) Err() error {
	if c.Classified() {
		return nil
	}
	return &UnclassifiablePaymentError{PaymentID: c.PaymentID, Rule: c.Rule}
}

// =============================================================================
// RULE TABLE
// =============================================================================

// classificationRule maps a record to a yearly key when match returns true.
// A record no rule matches is monthly.
type classificationRule struct {
	rule  Rule
	match func(p PaymentRecord) bool
}

var classificationRules = []classificationRule{
	{rule: RuleNoMonth, match: func(p PaymentRecord) bool { return p.PeriodMonth == nil }},
	{rule: RuleMonthRange, match: func(p PaymentRecord) bool { return p.PeriodMonthEnd != nil }},
	{rule: RuleLegacyLabel, match: func(p PaymentRecord) bool { return isLegacyAnnualLabel(p.PeriodLabel) }},
}

// legacyYearSeparator joins two calendar years in old annual labels ("2023 - 2024").
const legacyYearSeparator = " - "

func isLegacyAnnualLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "annual") ||
		strings.Contains(label, legacyYearSeparator)
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classify maps a successful payment onto the period it satisfies.
// Pending and failed records come back as RuleNotSettled.
func Classify(p PaymentRecord) Classification {
	if p.Outcome != OutcomeSuccess {
		return Classification{PaymentID: p.ID, Rule: RuleNotSettled}
	}
	return classifyShape(p)
}

// classifyShape applies the rule table without looking at the outcome, so the
// aggregator can also place pending attempts.
func classifyShape(p PaymentRecord) Classification {
	c := Classification{PaymentID: p.ID}
	if p.PeriodYear == nil {
		c.Rule = RuleMissingYear
		return c
	}
	year := *p.PeriodYear

	for _, r := range classificationRules {
		if r.match(p) {
			c.Key = YearlyKey(year)
			c.Rule = r.rule
			return c
		}
	}

	month := *p.PeriodMonth
	if month < 1 || month > 12 {
		c.Rule = RuleInvalidMonth
		return c
	}
	c.Key = MonthlyKey(year, time.Month(month))
	c.Rule = RuleMonthly
	return c
}
