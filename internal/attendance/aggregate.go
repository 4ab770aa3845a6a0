package attendance

import (
	"attendtrack/internal/model"
	"attendtrack/internal/store"
)

// DailyStats summarizes one calendar day for a set of students.
type DailyStats struct {
	TotalStudents  int     `json:"total_students"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// DailyStats computes the day summary for the students matching the
// class filter. A student in scope with no record for the date counts
// as absent. The rate is present over total enrolment, 0 when nobody is
// enrolled.
func (s *Service) DailyStats(date, className string) DailyStats {
	students := s.store.Students(store.StudentFilter{ClassName: className})
	records := s.store.AttendanceByDate(date, className)

	var present, late, recordedAbsent int
	for _, rec := range records {
		switch rec.Status {
		case model.StatusPresent:
			present++
		case model.StatusLate:
			late++
		case model.StatusAbsent:
			recordedAbsent++
		}
	}

	total := len(students)
	stats := DailyStats{
		TotalStudents: total,
		Present:       present,
		Late:          late,
		Absent:        recordedAbsent + (total - len(records)),
	}
	if total > 0 {
		stats.AttendanceRate = float64(present) / float64(total) * 100
	}
	return stats
}

// ClassStats pairs a day summary with its dashboard grouping key.
type ClassStats struct {
	Key string `json:"key"`
	DailyStats
}

// ClasswiseStats computes DailyStats once per known class, in class
// creation order, keyed "{className}-{section}".
func (s *Service) ClasswiseStats(date string) []ClassStats {
	classes := s.store.Classes()
	out := make([]ClassStats, 0, len(classes))
	for _, c := range classes {
		out = append(out, ClassStats{
			Key:        c.Key(),
			DailyStats: s.DailyStats(date, c.ClassName),
		})
	}
	return out
}

// RangeCounts are a student's raw status counts over a date range. Late
// is tracked separately even though it counts as present for percentage
// purposes.
type RangeCounts struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
}

// CountsInRange tallies a student's records with dates in [from, to].
func (s *Service) CountsInRange(studentID, from, to string) RangeCounts {
	var counts RangeCounts
	for _, rec := range s.store.AttendanceHistory(studentID, from, to) {
		counts.Total++
		switch rec.Status {
		case model.StatusPresent:
			counts.Present++
		case model.StatusLate:
			counts.Late++
		case model.StatusAbsent:
			counts.Absent++
		}
	}
	return counts
}

// Percentage converts the counts into a present-or-late percentage,
// 0 when there are no records.
func (c RangeCounts) Percentage() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Present+c.Late) / float64(c.Total) * 100
}

// StudentPercentage returns a student's attendance percentage over the
// range: present and late both count, over total recorded days.
func (s *Service) StudentPercentage(studentID, from, to string) float64 {
	return s.CountsInRange(studentID, from, to).Percentage()
}
