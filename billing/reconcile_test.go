package billing_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hostel-billing/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func monthlyRent() billing.ChargeDefinition {
	return billing.ChargeDefinition{
		ID:         "rent",
		BuildingID: "bldg-1",
		Name:       "Room rent",
		Amount:     billing.MustParseAmount("450.00"),
		Cadence:    billing.CadenceMonthly,
	}
}

func yearlyMaintenance() billing.ChargeDefinition {
	return billing.ChargeDefinition{
		ID:         "maint",
		BuildingID: "bldg-1",
		Name:       "Maintenance",
		Amount:     billing.MustParseAmount("1200.00"),
		Cadence:    billing.CadenceYearly,
	}
}

func paidMonth(charge billing.ChargeID, year int, month time.Month) billing.PaymentRecord {
	return billing.PaymentRecord{
		ID:          billing.PaymentID(string(charge) + "-" + billing.MonthlyKey(year, month).String()),
		TenantID:    "tenant-1",
		ChargeID:    charge,
		Amount:      billing.MustParseAmount("450.00"),
		Outcome:     billing.OutcomeSuccess,
		CreatedAt:   time.Date(year, month, 3, 12, 0, 0, 0, time.UTC),
		PeriodYear:  billing.IntPtr(year),
		PeriodMonth: billing.IntPtr(int(month)),
		PeriodLabel: month.String() + " " + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006"),
	}
}

func paidYear(charge billing.ChargeID, year int) billing.PaymentRecord {
	return billing.PaymentRecord{
		ID:         billing.PaymentID(string(charge) + "-" + billing.YearlyKey(year).String()),
		TenantID:   "tenant-1",
		ChargeID:   charge,
		Amount:     billing.MustParseAmount("1200.00"),
		Outcome:    billing.OutcomeSuccess,
		CreatedAt:  time.Date(year, time.January, 10, 0, 0, 0, 0, time.UTC),
		PeriodYear: billing.IntPtr(year),
	}
}

func anchorAt(y int, m time.Month, d int) *billing.TimePoint {
	tp := billing.NewTimePoint(y, m, d)
	return &tp
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestReconcile_ScenarioA_TwoMonthsOutstanding(t *testing.T) {
	// GIVEN: Monthly rent from 2024-01-15, January and February paid
	// WHEN: Reconciling on 2024-04-15
	// THEN: March and April are unpaid, tenant is not up to date
	payments := []billing.PaymentRecord{
		paidMonth("rent", 2024, time.January),
		paidMonth("rent", 2024, time.February),
	}

	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 15), payments, date(2024, time.April, 15))
	require.NoError(t, err)

	assert.True(t, status.Applicable)
	assert.Equal(t, billing.CadenceMonthly, status.ChosenFrequency)
	assert.Equal(t, []billing.PeriodKey{
		billing.MonthlyKey(2024, time.January),
		billing.MonthlyKey(2024, time.February),
	}, keysOf(status.PaidPeriods))
	assert.Equal(t, []billing.PeriodKey{
		billing.MonthlyKey(2024, time.March),
		billing.MonthlyKey(2024, time.April),
	}, keysOf(status.UnpaidPeriods))
	assert.False(t, status.IsUpToDate)
	assert.Equal(t, 2, status.Arrears())
	assert.True(t, status.InArrears())
	assert.Equal(t, billing.ActionPayNow, status.Action())
	assert.Equal(t, "900.00", status.AmountDue.String())
}

func TestReconcile_ScenarioB_LegacyYearlyRecord(t *testing.T) {
	// GIVEN: Yearly charge from 2023-06-01, one legacy record for 2023
	legacy := billing.PaymentRecord{
		ID:          "legacy-1",
		TenantID:    "tenant-1",
		ChargeID:    "maint",
		Amount:      billing.MustParseAmount("1200.00"),
		Outcome:     billing.OutcomeSuccess,
		PeriodYear:  billing.IntPtr(2023),
		PeriodLabel: "2023 - 2024",
	}
	anchor := anchorAt(2023, time.June, 1)

	t.Run("generation covers only 2023", func(t *testing.T) {
		status, err := billing.Reconcile(yearlyMaintenance(), anchor, []billing.PaymentRecord{legacy}, date(2023, time.December, 1))
		require.NoError(t, err)

		assert.Equal(t, []billing.PeriodKey{billing.YearlyKey(2023)}, keysOf(status.PaidPeriods))
		assert.Empty(t, status.UnpaidPeriods)
		assert.True(t, status.IsUpToDate)
		assert.Equal(t, billing.ActionPaid, status.Action())
	})

	t.Run("now in 2024", func(t *testing.T) {
		status, err := billing.Reconcile(yearlyMaintenance(), anchor, []billing.PaymentRecord{legacy}, date(2024, time.March, 1))
		require.NoError(t, err)

		assert.Equal(t, []billing.PeriodKey{billing.YearlyKey(2023)}, keysOf(status.PaidPeriods))
		assert.Equal(t, []billing.PeriodKey{billing.YearlyKey(2024)}, keysOf(status.UnpaidPeriods))
		assert.False(t, status.IsUpToDate)
		assert.False(t, status.InArrears())
	})
}

func TestReconcile_ScenarioC_NoPayments(t *testing.T) {
	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 10), nil, date(2024, time.April, 10))
	require.NoError(t, err)

	assert.Empty(t, status.PaidPeriods)
	assert.Len(t, status.UnpaidPeriods, 4)
	assert.False(t, status.IsUpToDate)
}

func TestReconcile_ScenarioD_MissingAnchor(t *testing.T) {
	// GIVEN: Applicant without a tenancy start date
	// THEN: Not-applicable sentinel, no error, and not reported as clear
	status, err := billing.Reconcile(monthlyRent(), nil, []billing.PaymentRecord{paidMonth("rent", 2024, time.January)}, date(2024, time.April, 1))
	require.NoError(t, err)

	assert.Equal(t, billing.NotApplicable(monthlyRent()), status)
	assert.False(t, status.Applicable)
	assert.False(t, status.IsUpToDate)
	assert.Equal(t, billing.ActionNotApplicable, status.Action())
	assert.NotEqual(t, billing.ActionPaid, status.Action(), "empty unpaid list must not read as paid")
}

func TestReconcile_AnchorInFuture(t *testing.T) {
	status, err := billing.Reconcile(monthlyRent(), anchorAt(2025, time.January, 1), nil, date(2024, time.December, 1))
	require.NoError(t, err)

	assert.True(t, status.Applicable)
	assert.Empty(t, status.UnpaidPeriods)
	assert.False(t, status.IsUpToDate)
	assert.True(t, status.AmountDue.IsZero())
	assert.Equal(t, billing.ActionNotStarted, status.Action())
	assert.NotEqual(t, billing.ActionPayNow, status.Action(), "nothing is due yet")
}

// =============================================================================
// CONFIGURATION ERRORS
// =============================================================================

func TestReconcile_InvalidCharge(t *testing.T) {
	zero := monthlyRent()
	zero.Amount = billing.NewAmountFromInt(0)

	negative := monthlyRent()
	negative.Amount = billing.MustParseAmount("-5")

	weekly := monthlyRent()
	weekly.Cadence = "weekly"

	tests := []struct {
		name   string
		charge billing.ChargeDefinition
		anchor *billing.TimePoint
		field  string
	}{
		{"zero amount", zero, anchorAt(2024, time.January, 1), "amount"},
		{"negative amount", negative, anchorAt(2024, time.January, 1), "amount"},
		{"unknown cadence", weekly, anchorAt(2024, time.January, 1), "cadence"},
		{"surfaced even without anchor", zero, nil, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := billing.Reconcile(tt.charge, tt.anchor, nil, date(2024, time.March, 1))
			require.Error(t, err)
			assert.True(t, errors.Is(err, billing.ErrInvalidChargeDefinition))
			assert.True(t, billing.IsConfigError(err))

			var chargeErr *billing.InvalidChargeError
			require.ErrorAs(t, err, &chargeErr)
			assert.Equal(t, tt.field, chargeErr.Field)
		})
	}
}

// =============================================================================
// PAYMENT FILTERING
// =============================================================================

func TestReconcile_IgnoresPendingFailedAndOtherCharges(t *testing.T) {
	pending := paidMonth("rent", 2024, time.February)
	pending.Outcome = billing.OutcomePending
	failed := paidMonth("rent", 2024, time.March)
	failed.Outcome = billing.OutcomeFailed
	otherCharge := paidMonth("laundry", 2024, time.March)

	payments := []billing.PaymentRecord{paidMonth("rent", 2024, time.January), pending, failed, otherCharge}
	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 1), payments, date(2024, time.March, 20))
	require.NoError(t, err)

	assert.Equal(t, []billing.PeriodKey{billing.MonthlyKey(2024, time.January)}, keysOf(status.PaidPeriods))
	assert.Equal(t, []billing.PeriodKey{
		billing.MonthlyKey(2024, time.February),
		billing.MonthlyKey(2024, time.March),
	}, keysOf(status.UnpaidPeriods))
	assert.Equal(t, []billing.PeriodKey{billing.MonthlyKey(2024, time.February)}, keysOf(status.PendingPeriods))
}

func TestReconcile_UnclassifiedNeverPaid(t *testing.T) {
	noYear := paidMonth("rent", 2024, time.March)
	noYear.ID = "z-no-year"
	noYear.PeriodYear = nil
	badMonth := paidMonth("rent", 2024, time.March)
	badMonth.ID = "a-bad-month"
	badMonth.PeriodMonth = billing.IntPtr(14)

	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.March, 1), []billing.PaymentRecord{noYear, badMonth}, date(2024, time.March, 31))
	require.NoError(t, err)

	assert.Empty(t, status.PaidPeriods)
	assert.False(t, status.IsUpToDate)
	require.Len(t, status.Unclassified, 2)
	assert.Equal(t, billing.PaymentID("a-bad-month"), status.Unclassified[0].PaymentID)
	assert.Equal(t, billing.RuleInvalidMonth, status.Unclassified[0].Rule)
	assert.Equal(t, billing.RuleMissingYear, status.Unclassified[1].Rule)
}

func TestReconcile_DuplicatePaymentsCountOnce(t *testing.T) {
	first := paidMonth("rent", 2024, time.January)
	second := first
	second.ID = "dup"

	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 1), []billing.PaymentRecord{first, second}, date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Len(t, status.PaidPeriods, 1)
	assert.True(t, status.IsUpToDate)
}

func TestReconcile_PrepaidFuturePeriodIgnored(t *testing.T) {
	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 1),
		[]billing.PaymentRecord{paidMonth("rent", 2024, time.June)}, date(2024, time.February, 1))
	require.NoError(t, err)

	assert.Empty(t, status.PaidPeriods)
	assert.Len(t, status.UnpaidPeriods, 2)
}

// =============================================================================
// CADENCE POLICIES
// =============================================================================

func TestReconcile_Majority_FollowsYearlyHistory(t *testing.T) {
	// GIVEN: Charge reconfigured to monthly, tenant always paid yearly
	// THEN: Periods are generated yearly so history still reads as paid
	payments := []billing.PaymentRecord{paidYear("rent", 2023), paidYear("rent", 2024)}

	status, err := billing.Reconcile(monthlyRent(), anchorAt(2023, time.March, 1), payments, date(2024, time.May, 1))
	require.NoError(t, err)

	assert.Equal(t, billing.CadenceYearly, status.ChosenFrequency)
	assert.Equal(t, []billing.PeriodKey{billing.YearlyKey(2023), billing.YearlyKey(2024)}, keysOf(status.PaidPeriods))
	assert.True(t, status.IsUpToDate)
}

func TestReconcile_Majority_TieKeepsConfigured(t *testing.T) {
	payments := []billing.PaymentRecord{paidYear("rent", 2023), paidMonth("rent", 2024, time.January)}

	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 1), payments, date(2024, time.February, 1))
	require.NoError(t, err)

	assert.Equal(t, billing.CadenceMonthly, status.ChosenFrequency)
}

func TestReconcile_Majority_SingleYearlyRecordDoesNotSwitch(t *testing.T) {
	// GIVEN: Monthly charge, only one successful payment and it is yearly
	// WHEN: Reconciling mid-year
	// THEN: Cadence stays monthly and the year is not reported as paid
	payments := []billing.PaymentRecord{paidYear("rent", 2024)}

	status, err := billing.Reconcile(monthlyRent(), anchorAt(2024, time.January, 1), payments, date(2024, time.March, 1))
	require.NoError(t, err)

	assert.Equal(t, billing.CadenceMonthly, status.ChosenFrequency)
	assert.Empty(t, status.PaidPeriods)
	assert.Len(t, status.UnpaidPeriods, 3)
	assert.NotEqual(t, billing.ActionPaid, status.Action())
}

func TestReconcile_ConfiguredPolicy_IgnoresHistory(t *testing.T) {
	engine := billing.NewEngine(billing.ConfiguredCadence{})
	payments := []billing.PaymentRecord{paidYear("rent", 2023), paidYear("rent", 2024)}

	status, err := engine.Reconcile(monthlyRent(), anchorAt(2024, time.January, 1), payments, date(2024, time.March, 1))
	require.NoError(t, err)

	assert.Equal(t, billing.CadenceMonthly, status.ChosenFrequency)
	assert.Empty(t, status.PaidPeriods)
	assert.Len(t, status.UnpaidPeriods, 3)
}

func TestCadencePolicies_Choose(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	yearly := func(at time.Time) billing.CadenceEvidence {
		return billing.CadenceEvidence{Cadence: billing.CadenceYearly, CreatedAt: at}
	}
	monthly := func(at time.Time) billing.CadenceEvidence {
		return billing.CadenceEvidence{Cadence: billing.CadenceMonthly, CreatedAt: at}
	}

	tests := []struct {
		name    string
		policy  billing.CadencePolicy
		history []billing.CadenceEvidence
		want    billing.Cadence
	}{
		{"majority empty", billing.MajorityHistoryCadence{}, nil, billing.CadenceMonthly},
		{"majority two of three yearly", billing.MajorityHistoryCadence{}, []billing.CadenceEvidence{yearly(t1), yearly(t2), monthly(t2)}, billing.CadenceYearly},
		{"majority single stray yearly", billing.MajorityHistoryCadence{}, []billing.CadenceEvidence{yearly(t1)}, billing.CadenceMonthly},
		{"majority tie", billing.MajorityHistoryCadence{}, []billing.CadenceEvidence{yearly(t1), monthly(t2)}, billing.CadenceMonthly},
		{"latest yearly", billing.LatestPaymentCadence{}, []billing.CadenceEvidence{monthly(t1), yearly(t2)}, billing.CadenceYearly},
		{"latest monthly", billing.LatestPaymentCadence{}, []billing.CadenceEvidence{yearly(t1), monthly(t2)}, billing.CadenceMonthly},
		{"latest disagreeing tie", billing.LatestPaymentCadence{}, []billing.CadenceEvidence{yearly(t2), monthly(t2)}, billing.CadenceMonthly},
		{"latest empty", billing.LatestPaymentCadence{}, nil, billing.CadenceMonthly},
		{"configured", billing.ConfiguredCadence{}, []billing.CadenceEvidence{yearly(t1)}, billing.CadenceMonthly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Choose(billing.CadenceMonthly, tt.history))
		})
	}
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"", "majority", "configured", "latest"} {
		p, err := billing.PolicyByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}
	_, err := billing.PolicyByName("median")
	assert.Error(t, err)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestReconcile_Idempotent(t *testing.T) {
	payments := []billing.PaymentRecord{
		paidMonth("rent", 2024, time.March),
		paidMonth("rent", 2024, time.January),
		paidYear("rent", 2022),
	}
	anchor := anchorAt(2023, time.November, 20)
	now := date(2024, time.April, 2)

	first, err := billing.Reconcile(monthlyRent(), anchor, payments, now)
	require.NoError(t, err)
	second, err := billing.Reconcile(monthlyRent(), anchor, payments, now)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first, second)
}

func TestReconcile_PaidUnpaidRoundTrip(t *testing.T) {
	payments := []billing.PaymentRecord{
		paidMonth("rent", 2023, time.December),
		paidMonth("rent", 2024, time.February),
		paidMonth("rent", 2024, time.May),
	}
	status, err := billing.Reconcile(monthlyRent(), anchorAt(2023, time.October, 5), payments, date(2024, time.May, 5))
	require.NoError(t, err)

	classified := map[billing.PeriodKey]bool{}
	for _, p := range payments {
		if c := billing.Classify(p); c.Classified() {
			classified[c.Key] = true
		}
	}
	for _, p := range status.PaidPeriods {
		assert.True(t, classified[p.Key], "paid period %s has no payment", p)
	}
	for _, p := range status.UnpaidPeriods {
		assert.False(t, classified[p.Key], "unpaid period %s has a payment", p)
	}

	seen := map[billing.PeriodKey]bool{}
	for _, p := range append(append([]billing.Period{}, status.PaidPeriods...), status.UnpaidPeriods...) {
		assert.False(t, seen[p.Key], "period %s listed twice", p)
		seen[p.Key] = true
	}
	assert.Len(t, seen, 8)
}

func TestReconcile_OrderedAscending(t *testing.T) {
	payments := []billing.PaymentRecord{
		paidMonth("rent", 2024, time.April),
		paidMonth("rent", 2024, time.January),
		paidMonth("rent", 2024, time.March),
	}
	status, err := billing.Reconcile(monthlyRent(), anchorAt(2023, time.December, 1), payments, date(2024, time.June, 1))
	require.NoError(t, err)

	for _, list := range [][]billing.Period{status.PaidPeriods, status.UnpaidPeriods} {
		for i := 1; i < len(list); i++ {
			assert.True(t, list[i-1].Key.Before(list[i].Key))
		}
	}
}

func TestReconcile_Monotonic(t *testing.T) {
	// GIVEN: Payments added one at a time
	// THEN: A period once paid never becomes unpaid
	anchor := anchorAt(2024, time.January, 1)
	now := date(2024, time.June, 30)
	months := []time.Month{time.March, time.January, time.June, time.February, time.May, time.April}

	var payments []billing.PaymentRecord
	prevPaid := map[billing.PeriodKey]bool{}
	for _, m := range months {
		payments = append(payments, paidMonth("rent", 2024, m))
		status, err := billing.Reconcile(monthlyRent(), anchor, payments, now)
		require.NoError(t, err)

		for key := range prevPaid {
			assert.True(t, status.IsPaid(key), "%s regressed to unpaid", key)
		}
		for _, p := range status.PaidPeriods {
			prevPaid[p.Key] = true
		}
	}
	assert.Len(t, prevPaid, 6)
}
