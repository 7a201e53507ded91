package statistics

import (
	"math"
	"regexp"
	"strings"
	"time"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
)

// dataset is everything a kind function reads. Buckets are already ordered.
type dataset struct {
	period   models.Period
	buckets  []bucket
	baseline []models.AttendanceFact

	// first day of the period immediately before the one containing From
	baselineStart time.Time

	// facts in range ordered by check-in time
	chronological      []models.AttendanceFact
	historicalVisitors map[string]struct{}
}

type bucket struct {
	label string
	start time.Time
	facts []models.AttendanceFact
}

// previous returns the facts of the period immediately before bucket i.
// A period without attendance has no bucket and yields nil.
func (ds *dataset) previous(i int) []models.AttendanceFact {
	prevStart, _ := previousPeriod(ds.period, ds.buckets[i].start)
	switch {
	case prevStart.Equal(ds.baselineStart):
		return ds.baseline
	case i > 0 && ds.buckets[i-1].start.Equal(prevStart):
		return ds.buckets[i-1].facts
	default:
		return nil
	}
}

type kindFunc func(ds *dataset) []models.PeriodValue

// kindFuncs maps every statistic kind to its computation.
var kindFuncs = map[models.StatisticKind]kindFunc{
	models.StatTotalAttendance:   totalAttendance,
	models.StatUniqueMembers:     uniqueMembers,
	models.StatVisitors:          visitors,
	models.StatFirstTimeVisitors: firstTimeVisitors,
	models.StatGrowthRate:        growthRate,
	models.StatRetentionRate:     retentionRate,
}

func perBucket(ds *dataset, value func(facts []models.AttendanceFact) float64) []models.PeriodValue {
	out := make([]models.PeriodValue, 0, len(ds.buckets))
	for _, b := range ds.buckets {
		out = append(out, models.PeriodValue{Period: b.label, Value: value(b.facts)})
	}
	return out
}

// totalAttendance counts rows. A headcount summary row counts once.
func totalAttendance(ds *dataset) []models.PeriodValue {
	return perBucket(ds, func(facts []models.AttendanceFact) float64 {
		return float64(len(facts))
	})
}

func uniqueMembers(ds *dataset) []models.PeriodValue {
	return perBucket(ds, func(facts []models.AttendanceFact) float64 {
		return float64(len(memberSet(facts)))
	})
}

func visitors(ds *dataset) []models.PeriodValue {
	return perBucket(ds, func(facts []models.AttendanceFact) float64 {
		n := 0
		for _, f := range facts {
			if isVisitor(f) {
				n++
			}
		}
		return float64(n)
	})
}

// firstTimeVisitors counts visitor rows whose visitor key was never seen in
// scope before: not before the range and not earlier within it.
func firstTimeVisitors(ds *dataset) []models.PeriodValue {
	seen := make(map[string]struct{}, len(ds.historicalVisitors))
	for k := range ds.historicalVisitors {
		seen[k] = struct{}{}
	}
	firsts := make(map[id.RecordID]struct{})
	for _, f := range ds.chronological {
		if !isVisitor(f) {
			continue
		}
		key := VisitorKey(models.Visitor{Name: *f.VisitorName, Email: f.VisitorEmail, Phone: f.VisitorPhone})
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		firsts[f.RecordID] = struct{}{}
	}
	return perBucket(ds, func(facts []models.AttendanceFact) float64 {
		n := 0
		for _, f := range facts {
			if _, ok := firsts[f.RecordID]; ok {
				n++
			}
		}
		return float64(n)
	})
}

// growthRate is (total - previous total) / previous total * 100, where
// previous is the period immediately before the bucket's own. 0 when
// previous is 0.
func growthRate(ds *dataset) []models.PeriodValue {
	out := make([]models.PeriodValue, 0, len(ds.buckets))
	for i, b := range ds.buckets {
		prev, cur := len(ds.previous(i)), len(b.facts)
		out = append(out, models.PeriodValue{Period: b.label, Value: Rate(float64(cur-prev), float64(prev))})
	}
	return out
}

// retentionRate is the share of the previous period's members who attended
// again in this bucket. 0 when the previous period had no members.
func retentionRate(ds *dataset) []models.PeriodValue {
	out := make([]models.PeriodValue, 0, len(ds.buckets))
	for i, b := range ds.buckets {
		prev, cur := memberSet(ds.previous(i)), memberSet(b.facts)
		kept := 0
		for m := range prev {
			if _, ok := cur[m]; ok {
				kept++
			}
		}
		out = append(out, models.PeriodValue{Period: b.label, Value: Rate(float64(kept), float64(len(prev)))})
	}
	return out
}

func memberSet(facts []models.AttendanceFact) map[id.MemberID]struct{} {
	set := make(map[id.MemberID]struct{})
	for _, f := range facts {
		if f.MemberID != nil {
			set[*f.MemberID] = struct{}{}
		}
	}
	return set
}

func isVisitor(f models.AttendanceFact) bool {
	return f.MemberID == nil && f.VisitorName != nil && strings.TrimSpace(*f.VisitorName) != ""
}

var nonDigits = regexp.MustCompile(`\D`)

// VisitorKey identifies a visitor across sessions: lower-cased email, else
// the phone's digits, else the lower-cased trimmed name.
func VisitorKey(v models.Visitor) string {
	if v.Email != nil {
		if e := strings.ToLower(strings.TrimSpace(*v.Email)); e != "" {
			return "email:" + e
		}
	}
	if v.Phone != nil {
		if p := nonDigits.ReplaceAllString(*v.Phone, ""); p != "" {
			return "phone:" + p
		}
	}
	if n := strings.ToLower(strings.TrimSpace(v.Name)); n != "" {
		return "name:" + n
	}
	return ""
}

// Percent is part/whole*100 rounded to 2 decimals, and 0 when whole is 0.
func Percent(part, whole int) float64 {
	return Rate(float64(part), float64(whole))
}

// Rate is num/den*100 rounded to 2 decimals, and 0 when den is 0.
func Rate(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return round2(num / den * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
