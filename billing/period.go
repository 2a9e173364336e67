package billing

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// PERIOD - One billable cycle
// =============================================================================

// PeriodKey identifies a period. Two periods are the same iff their keys match.
// Month is zero for yearly periods.
type PeriodKey struct {
	Cadence Cadence
	Year    int
	Month   time.Month
}

func YearlyKey(year int) PeriodKey { return PeriodKey{Cadence: CadenceYearly, Year: year} }

func MonthlyKey(year int, month time.Month) PeriodKey {
	return PeriodKey{Cadence: CadenceMonthly, Year: year, Month: month}
}

func (k PeriodKey) String() string {
	if k.Cadence == CadenceMonthly {
		return fmt.Sprintf("%s:%04d-%02d", k.Cadence, k.Year, int(k.Month))
	}
	return fmt.Sprintf("%s:%04d", k.Cadence, k.Year)
}

// Before orders keys of the same cadence chronologically.
func (k PeriodKey) Before(other PeriodKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Period is computed, never stored.
type Period struct {
	Key   PeriodKey
	Label string
}

func newPeriod(key PeriodKey) Period {
	label := strconv.Itoa(key.Year)
	if key.Cadence == CadenceMonthly {
		label = key.Month.String() + " " + label
	}
	return Period{Key: key, Label: label}
}

func (p Period) Cadence() Cadence  { return p.Key.Cadence }
func (p Period) Year() int         { return p.Key.Year }
func (p Period) Month() time.Month { return p.Key.Month }

// Start returns the first day covered by the period.
func (p Period) Start() TimePoint {
	if p.Key.Cadence == CadenceMonthly {
		return StartOfMonth(p.Key.Year, p.Key.Month)
	}
	return StartOfYear(p.Key.Year)
}

// End returns the last day covered by the period.
func (p Period) End() TimePoint {
	if p.Key.Cadence == CadenceMonthly {
		return EndOfMonth(p.Key.Year, p.Key.Month)
	}
	return EndOfYear(p.Key.Year)
}

// Contains returns true if the date is within [Start, End].
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start()) && t.BeforeOrEqual(p.End())
}

func (p Period) String() string {
	return p.Label
}

// =============================================================================
// PERIOD GENERATOR
// =============================================================================

// GeneratePeriods returns every period of the given cadence from the one
// containing anchor through the one containing asOf, inclusive.
//
// The first period is whole even when the anchor falls mid-cycle; there is no
// proration. An anchor after asOf yields an empty slice. Each call returns a
// fresh slice so callers may keep or mutate it.
func GeneratePeriods(anchor TimePoint, cadence Cadence, asOf TimePoint) []Period {
	if anchor.After(asOf) {
		return []Period{}
	}

	switch cadence {
	case CadenceYearly:
		periods := make([]Period, 0, asOf.Year()-anchor.Year()+1)
		for y := anchor.Year(); y <= asOf.Year(); y++ {
			periods = append(periods, newPeriod(YearlyKey(y)))
		}
		return periods

	case CadenceMonthly:
		// Step (year, month) directly. AddDate on a 31st anchor would skip
		// short months.
		n := MonthsBetween(anchor, asOf)
		periods := make([]Period, 0, n+1)
		year, month := anchor.Year(), anchor.Month()
		for i := 0; i <= n; i++ {
			periods = append(periods, newPeriod(MonthlyKey(year, month)))
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
		return periods

	default:
		return []Period{}
	}
}
