package models

import (
	"time"

	id "rollcall/pkg/domain"
)

// StatisticKind names a period-bucketed metric.
type StatisticKind string

const (
	StatTotalAttendance   StatisticKind = "TOTAL_ATTENDANCE"
	StatUniqueMembers     StatisticKind = "UNIQUE_MEMBERS"
	StatVisitors          StatisticKind = "VISITORS"
	StatFirstTimeVisitors StatisticKind = "FIRST_TIME_VISITORS"
	StatGrowthRate        StatisticKind = "GROWTH_RATE"
	StatRetentionRate     StatisticKind = "RETENTION_RATE"
)

// AllStatisticKinds lists every kind in canonical order.
var AllStatisticKinds = []StatisticKind{
	StatTotalAttendance,
	StatUniqueMembers,
	StatVisitors,
	StatFirstTimeVisitors,
	StatGrowthRate,
	StatRetentionRate,
}

func (k StatisticKind) IsValid() bool {
	for _, known := range AllStatisticKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Period is a bucketing granularity.
type Period string

const (
	PeriodDaily     Period = "DAILY"
	PeriodWeekly    Period = "WEEKLY"
	PeriodMonthly   Period = "MONTHLY"
	PeriodQuarterly Period = "QUARTERLY"
	PeriodYearly    Period = "YEARLY"
)

func (p Period) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// Scope restricts statistics to an organisation, a branch, or a branch
// within an organisation. At least one must be set.
type Scope struct {
	OrganisationID *id.OrganisationID `json:"organisation_id,omitempty"`
	BranchID       *id.BranchID       `json:"branch_id,omitempty"`
}

// StatisticsRequest drives the aggregator. From and To are inclusive
// calendar days matched against session dates.
type StatisticsRequest struct {
	From   time.Time       `json:"from"`
	To     time.Time       `json:"to"`
	Scope  Scope           `json:"scope"`
	Period Period          `json:"period"`
	Kinds  []StatisticKind `json:"kinds"`
}

// PeriodValue is one bucket of a series.
type PeriodValue struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// Series is the bucketed output of one statistic kind.
type Series struct {
	Kind   StatisticKind `json:"kind"`
	Values []PeriodValue `json:"values"`
}

// Breakdown is one demographic bucket.
type Breakdown struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Demographics are computed for every request regardless of requested kinds.
type Demographics struct {
	AgeGroups    []Breakdown `json:"age_groups"`
	Gender       []Breakdown `json:"gender"`
	Branches     []Breakdown `json:"branches"`
	SessionTypes []Breakdown `json:"session_types"`
}

// StatisticsReport is the full aggregator output.
type StatisticsReport struct {
	From         string       `json:"from"`
	To           string       `json:"to"`
	Period       Period       `json:"period"`
	Series       []Series     `json:"series"`
	Demographics Demographics `json:"demographics"`
	Frequency    []Breakdown  `json:"frequency"`
}

// AttendanceFact is one attendance row joined with the session and member
// attributes the aggregator groups by.
type AttendanceFact struct {
	RecordID     id.RecordID
	SessionID    id.SessionID
	SessionDate  time.Time
	SessionType  SessionType
	BranchName   string
	MemberID     *id.MemberID
	VisitorName  *string
	VisitorEmail *string
	VisitorPhone *string
	CheckInTime  time.Time
	MemberGender Gender
	MemberBirth  *time.Time
}

// FactQuery selects attendance facts for sessions dated From..To inclusive.
type FactQuery struct {
	From  time.Time
	To    time.Time
	Scope Scope
}
