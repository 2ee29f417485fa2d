package report

import (
	"time"

	"buysell/backend/internal/domain"
)

type Mode string

const (
	ModeWeekly  Mode = "weekly"
	ModeMonthly Mode = "monthly"
)

const (
	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
)

// BuildBuckets pre-seeds the zeroed bucket sequence for a reporting window
// ending at the anchor instant. Weekly mode yields the 7 calendar days up to
// and including the anchor's date; monthly mode yields the 12 calendar months
// up to and including the anchor's month. Buckets are always ascending.
func BuildBuckets(mode Mode, anchor time.Time) []domain.TimeBucket {
	anchor = anchor.UTC()

	if mode == ModeMonthly {
		buckets := make([]domain.TimeBucket, 0, 12)
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
		for i := 0; i < 12; i++ {
			month := first.AddDate(0, i, 0)
			buckets = append(buckets, domain.TimeBucket{
				Key:   month.Format(monthKeyLayout),
				Label: month.Format("Jan"),
			})
		}
		return buckets
	}

	buckets := make([]domain.TimeBucket, 0, 7)
	first := anchor.AddDate(0, 0, -6)
	for i := 0; i < 7; i++ {
		day := first.AddDate(0, 0, i)
		buckets = append(buckets, domain.TimeBucket{
			Key:   day.Format(dayKeyLayout),
			Label: day.Format("Jan 2"),
		})
	}
	return buckets
}

// Aggregate folds transaction profits into the matching buckets and returns
// the filled sequence. Records outside the window are dropped silently;
// records whose created-at prefix does not parse as a date are skipped
// without failing the rest of the report.
func Aggregate(mode Mode, buckets []domain.TimeBucket, transactions []domain.SaleTransaction) []domain.TimeBucket {
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b.Key] = i
	}

	for _, tx := range transactions {
		key, ok := bucketKey(mode, tx.CreatedAt)
		if !ok {
			continue
		}
		if i, found := index[key]; found {
			buckets[i].Profit += tx.TotalProfit
		}
	}
	return buckets
}

// bucketKey derives the bucket key from a transaction timestamp string. Only
// the date prefix is interpreted, so trailing precision differences between
// writers never matter.
func bucketKey(mode Mode, createdAt string) (string, bool) {
	if len(createdAt) < 10 {
		return "", false
	}
	day := createdAt[:10]
	if _, err := time.Parse(dayKeyLayout, day); err != nil {
		return "", false
	}
	if mode == ModeMonthly {
		return createdAt[:7], true
	}
	return day, true
}

func PeriodProfit(buckets []domain.TimeBucket) float64 {
	total := 0.0
	for _, b := range buckets {
		total += b.Profit
	}
	return total
}

// PercentChange reports current against previous in percent. A zero previous
// period maps to +100 when the current period has profit and 0 otherwise, so
// a first active period always reads as full growth.
func PercentChange(current float64, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// Snapshot builds the full analytics view for the window ending at the
// anchor: filled buckets, the period profit, and the change against the
// immediately preceding window of equal length.
func Snapshot(mode Mode, anchor time.Time, transactions []domain.SaleTransaction) domain.AnalyticsSnapshot {
	anchor = anchor.UTC()

	buckets := Aggregate(mode, BuildBuckets(mode, anchor), transactions)
	current := PeriodProfit(buckets)

	prevAnchor := anchor.AddDate(0, 0, -7)
	if mode == ModeMonthly {
		// Step back from the first of the anchor's month: shifting a late
		// month day (e.g. Feb 29) directly would normalize into the anchor's
		// own window and double-count its first month.
		monthStart := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
		prevAnchor = monthStart.AddDate(0, -12, 0)
	}
	prevBuckets := Aggregate(mode, BuildBuckets(mode, prevAnchor), transactions)
	previous := PeriodProfit(prevBuckets)

	return domain.AnalyticsSnapshot{
		Mode:                string(mode),
		Anchor:              anchor.Format(dayKeyLayout),
		Buckets:             buckets,
		PeriodProfit:        current,
		ProfitChangePercent: PercentChange(current, previous),
	}
}
