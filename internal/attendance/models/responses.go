package models

import "time"

// BulkResult is returned by bulk recording.
//
// For the headcount form Count is the headcount itself while Records holds
// the single summary row, so Count != len(Records) is expected there.
type BulkResult struct {
	Count   int                 `json:"count"`
	Records []*AttendanceRecord `json:"records"`
}

// CardScanResult reports the record a scan touched and how.
type CardScanResult struct {
	Transition ScanTransition    `json:"transition"`
	Record     *AttendanceRecord `json:"record"`
}

// AbsentMember is one entry of an absence report.
type AbsentMember struct {
	Member         *Member    `json:"member"`
	LastAttendance *time.Time `json:"last_attendance,omitempty"`
	DaysAbsent     *int       `json:"days_absent,omitempty"`
}
