package statistics

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
)

const (
	labelUnknown    = "Unknown"
	labelUnassigned = "Unassigned"
)

var ageGroups = []struct {
	label    string
	min, max int
}{
	{"Under 18", 0, 17},
	{"18-24", 18, 24},
	{"25-34", 25, 34},
	{"35-44", 35, 44},
	{"45-54", 45, 54},
	{"55-64", 55, 64},
	{"65+", 65, 1 << 30},
}

var genderOrder = []models.Gender{models.GenderMale, models.GenderFemale, models.GenderOther}

var sessionTypeOrder = []models.SessionType{
	models.SessionTypeRegularService,
	models.SessionTypeSpecialEvent,
	models.SessionTypeBibleStudy,
	models.SessionTypePrayerMeeting,
	models.SessionTypeOther,
}

// distinctMembers keeps the first fact seen per member.
func distinctMembers(facts []models.AttendanceFact) []models.AttendanceFact {
	seen := make(map[id.MemberID]struct{})
	out := make([]models.AttendanceFact, 0)
	for _, f := range facts {
		if f.MemberID == nil {
			continue
		}
		if _, ok := seen[*f.MemberID]; ok {
			continue
		}
		seen[*f.MemberID] = struct{}{}
		out = append(out, f)
	}
	return out
}

func demographics(facts []models.AttendanceFact, now time.Time) models.Demographics {
	members := distinctMembers(facts)
	return models.Demographics{
		AgeGroups:    ageBreakdown(members, now),
		Gender:       genderBreakdown(members),
		Branches:     branchBreakdown(facts),
		SessionTypes: sessionTypeBreakdown(facts),
	}
}

// ageBreakdown always lists every age group, including empty ones.
func ageBreakdown(members []models.AttendanceFact, now time.Time) []models.Breakdown {
	counts := make(map[string]int)
	for _, m := range members {
		counts[ageLabel(m.MemberBirth, now)]++
	}
	out := make([]models.Breakdown, 0, len(ageGroups)+1)
	for _, g := range ageGroups {
		out = append(out, breakdown(g.label, counts[g.label], len(members)))
	}
	return append(out, breakdown(labelUnknown, counts[labelUnknown], len(members)))
}

func ageLabel(birth *time.Time, now time.Time) string {
	if birth == nil || birth.After(now) {
		return labelUnknown
	}
	age := Age(*birth, now)
	for _, g := range ageGroups {
		if age >= g.min && age <= g.max {
			return g.label
		}
	}
	return labelUnknown
}

// Age is completed years between birth and now.
func Age(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

func genderBreakdown(members []models.AttendanceFact) []models.Breakdown {
	counts := make(map[models.Gender]int)
	unknown := 0
	for _, m := range members {
		switch m.MemberGender {
		case models.GenderMale, models.GenderFemale, models.GenderOther:
			counts[m.MemberGender]++
		default:
			unknown++
		}
	}
	out := make([]models.Breakdown, 0, len(genderOrder)+1)
	for _, g := range genderOrder {
		out = append(out, breakdown(string(g), counts[g], len(members)))
	}
	return append(out, breakdown(labelUnknown, unknown, len(members)))
}

// branchBreakdown counts rows by branch name, largest first, ties by name.
func branchBreakdown(facts []models.AttendanceFact) []models.Breakdown {
	counts := make(map[string]int)
	for _, f := range facts {
		name := f.BranchName
		if name == "" {
			name = labelUnassigned
		}
		counts[name]++
	}
	out := make([]models.Breakdown, 0, len(counts))
	for name, n := range counts {
		out = append(out, breakdown(name, n, len(facts)))
	}
	slices.SortFunc(out, func(a, b models.Breakdown) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

func sessionTypeBreakdown(facts []models.AttendanceFact) []models.Breakdown {
	counts := make(map[models.SessionType]int)
	for _, f := range facts {
		counts[f.SessionType]++
	}
	out := make([]models.Breakdown, 0, len(sessionTypeOrder))
	for _, t := range sessionTypeOrder {
		out = append(out, breakdown(string(t), counts[t], len(facts)))
	}
	return out
}

// frequency histograms the number of distinct sessions each member attended.
func frequency(facts []models.AttendanceFact) []models.Breakdown {
	sessions := make(map[id.MemberID]map[id.SessionID]struct{})
	for _, f := range facts {
		if f.MemberID == nil {
			continue
		}
		set, ok := sessions[*f.MemberID]
		if !ok {
			set = make(map[id.SessionID]struct{})
			sessions[*f.MemberID] = set
		}
		set[f.SessionID] = struct{}{}
	}
	byTimes := make(map[int]int)
	for _, set := range sessions {
		byTimes[len(set)]++
	}
	times := make([]int, 0, len(byTimes))
	for n := range byTimes {
		times = append(times, n)
	}
	slices.Sort(times)
	out := make([]models.Breakdown, 0, len(times))
	for _, n := range times {
		out = append(out, breakdown(FrequencyLabel(n), byTimes[n], len(sessions)))
	}
	return out
}

// FrequencyLabel renders "1 time" or "N times".
func FrequencyLabel(n int) string {
	if n == 1 {
		return "1 time"
	}
	return fmt.Sprintf("%d times", n)
}

func breakdown(label string, count, whole int) models.Breakdown {
	return models.Breakdown{Label: label, Count: count, Percentage: Percent(count, whole)}
}
