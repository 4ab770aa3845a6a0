// Package store is the authoritative in-memory holder of all entities.
// Every mutation happens under one write lock, so check-then-insert
// sequences inside a single call are atomic.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendtrack/internal/model"
)

var (
	ErrStudentNotFound    = errors.New("student not found")
	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrClassNotFound      = errors.New("class not found")
	ErrUserNotFound       = errors.New("user not found")

	ErrDuplicateAdmissionNo = errors.New("admission number already in use")
	ErrDuplicateAttendance  = errors.New("attendance already recorded for this date")
	ErrDuplicateUsername    = errors.New("username already in use")

	ErrInvalidStudent    = errors.New("admission number and name are required")
	ErrInvalidAttendance = errors.New("invalid attendance record")
)

// Store keeps all entities keyed by identifier. Insertion order is
// retained per entity so listings and name-sorted results are stable
// across calls.
type Store struct {
	mu sync.RWMutex

	students     map[string]*model.Student
	studentOrder []string

	attendance      map[string]*model.AttendanceRecord
	attendanceOrder []string
	attendanceByDay map[string]string // studentID + "|" + date -> record id

	classes    map[string]*model.Class
	classOrder []string

	users map[string]*model.User
}

// New creates an empty store.
func New() *Store {
	return &Store{
		students:        make(map[string]*model.Student),
		attendance:      make(map[string]*model.AttendanceRecord),
		attendanceByDay: make(map[string]string),
		classes:         make(map[string]*model.Class),
		users:           make(map[string]*model.User),
	}
}

// -------- Students --------

// StudentFilter narrows student listings. Empty fields match everything.
type StudentFilter struct {
	ClassName string
	Section   string
}

func (f StudentFilter) matches(st *model.Student) bool {
	if f.ClassName != "" && st.ClassName != f.ClassName {
		return false
	}
	if f.Section != "" && st.Section != f.Section {
		return false
	}
	return true
}

// CreateStudent assigns an identifier, derives the QR payload from the
// admission number, and inserts the student. Admission numbers are
// unique across all students.
func (s *Store) CreateStudent(st model.Student) (model.Student, error) {
	if st.AdmissionNo == "" || st.Name == "" {
		return model.Student{}, ErrInvalidStudent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.students {
		if existing.AdmissionNo == st.AdmissionNo {
			return model.Student{}, ErrDuplicateAdmissionNo
		}
	}

	st.ID = uuid.NewString()
	st.CreatedAt = time.Now().UTC()
	st.QRPayload = model.QRData{
		StudentID:   st.ID,
		AdmissionNo: st.AdmissionNo,
		Name:        st.Name,
	}.Encode()

	stored := st
	s.students[stored.ID] = &stored
	s.studentOrder = append(s.studentOrder, stored.ID)
	return st, nil
}

// BulkResult reports the outcome for one element of a bulk create.
type BulkResult struct {
	Index   int           `json:"index"`
	Student model.Student `json:"student,omitempty"`
	Err     error         `json:"-"`
}

// BulkCreateStudents applies CreateStudent to each element in input
// order, continuing past per-element failures.
func (s *Store) BulkCreateStudents(list []model.Student) []BulkResult {
	results := make([]BulkResult, 0, len(list))
	for i, st := range list {
		created, err := s.CreateStudent(st)
		results = append(results, BulkResult{Index: i, Student: created, Err: err})
	}
	return results
}

// StudentByID returns the student with the given identifier.
func (s *Store) StudentByID(id string) (model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return model.Student{}, ErrStudentNotFound
	}
	return *st, nil
}

// StudentByAdmissionNo looks a student up by the externally issued key.
func (s *Store) StudentByAdmissionNo(admissionNo string) (model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.studentOrder {
		if st, ok := s.students[id]; ok && st.AdmissionNo == admissionNo {
			return *st, nil
		}
	}
	return model.Student{}, ErrStudentNotFound
}

// Students returns all students matching the filter, sorted by name
// ascending. Ties on name keep creation order.
func (s *Store) Students(f StudentFilter) []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Student, 0, len(s.studentOrder))
	for _, id := range s.studentOrder {
		if st, ok := s.students[id]; ok && f.matches(st) {
			out = append(out, *st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateStudent applies a partial update and returns the stored result.
func (s *Store) UpdateStudent(id string, patch model.StudentPatch) (model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return model.Student{}, ErrStudentNotFound
	}
	patch.Apply(st)
	return *st, nil
}

// DeleteStudent removes the student. Attendance records are not
// cascade-deleted; they stay reachable through raw history queries.
func (s *Store) DeleteStudent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[id]; !ok {
		return ErrStudentNotFound
	}
	delete(s.students, id)
	for i, sid := range s.studentOrder {
		if sid == id {
			s.studentOrder = append(s.studentOrder[:i], s.studentOrder[i+1:]...)
			break
		}
	}
	return nil
}

// -------- Attendance --------

func dayKey(studentID, date string) string { return studentID + "|" + date }

// PutAttendance inserts a record, enforcing at most one record per
// (student, date) pair. The duplicate check and the insert run under a
// single lock acquisition.
func (s *Store) PutAttendance(rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.StudentID == "" || rec.Date == "" || !rec.Status.Valid() || !rec.Method.Valid() {
		return model.AttendanceRecord{}, ErrInvalidAttendance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(rec.StudentID, rec.Date)
	if _, exists := s.attendanceByDay[key]; exists {
		return model.AttendanceRecord{}, ErrDuplicateAttendance
	}

	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	stored := rec
	s.attendance[stored.ID] = &stored
	s.attendanceOrder = append(s.attendanceOrder, stored.ID)
	s.attendanceByDay[key] = stored.ID
	return rec, nil
}

// Attendance returns the single record for a student on a date.
func (s *Store) Attendance(studentID, date string) (model.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.attendanceByDay[dayKey(studentID, date)]
	if !ok {
		return model.AttendanceRecord{}, ErrAttendanceNotFound
	}
	return *s.attendance[id], nil
}

// AttendanceByDate returns all records for a date. A non-empty class
// name keeps only records whose student currently belongs to that class;
// orphaned records never match a class filter.
func (s *Store) AttendanceByDate(date, className string) []model.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AttendanceRecord
	for _, id := range s.attendanceOrder {
		rec := s.attendance[id]
		if rec.Date != date {
			continue
		}
		if className != "" {
			st, ok := s.students[rec.StudentID]
			if !ok || st.ClassName != className {
				continue
			}
		}
		out = append(out, *rec)
	}
	return out
}

// AttendanceHistory returns a student's records with dates in [from, to],
// both ends inclusive. Empty bounds are unbounded. Dates compare
// lexicographically, which matches chronological order for the
// YYYY-MM-DD layout.
func (s *Store) AttendanceHistory(studentID, from, to string) []model.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AttendanceRecord
	for _, id := range s.attendanceOrder {
		rec := s.attendance[id]
		if rec.StudentID != studentID {
			continue
		}
		if from != "" && rec.Date < from {
			continue
		}
		if to != "" && rec.Date > to {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// UpdateAttendance applies a partial update to an existing record.
func (s *Store) UpdateAttendance(id string, patch model.AttendancePatch) (model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.attendance[id]
	if !ok {
		return model.AttendanceRecord{}, ErrAttendanceNotFound
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.AttendanceRecord{}, ErrInvalidAttendance
	}
	if patch.Method != nil && !patch.Method.Valid() {
		return model.AttendanceRecord{}, ErrInvalidAttendance
	}
	patch.Apply(rec)
	return *rec, nil
}

// -------- Classes --------

// CreateClass inserts a class for grouping and dashboards.
func (s *Store) CreateClass(c model.Class) (model.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	stored := c
	s.classes[stored.ID] = &stored
	s.classOrder = append(s.classOrder, stored.ID)
	return c, nil
}

// Classes returns all classes in creation order.
func (s *Store) Classes() []model.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Class, 0, len(s.classOrder))
	for _, id := range s.classOrder {
		out = append(out, *s.classes[id])
	}
	return out
}

// ClassByID returns the class with the given identifier.
func (s *Store) ClassByID(id string) (model.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[id]
	if !ok {
		return model.Class{}, ErrClassNotFound
	}
	return *c, nil
}

// UpdateClass applies a partial update and returns the stored result.
func (s *Store) UpdateClass(id string, patch model.ClassPatch) (model.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return model.Class{}, ErrClassNotFound
	}
	patch.Apply(c)
	return *c, nil
}

// DeleteClass removes a class. Students keep their denormalized class
// fields; the two are independently owned.
func (s *Store) DeleteClass(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[id]; !ok {
		return ErrClassNotFound
	}
	delete(s.classes, id)
	for i, cid := range s.classOrder {
		if cid == id {
			s.classOrder = append(s.classOrder[:i], s.classOrder[i+1:]...)
			break
		}
	}
	return nil
}

// -------- Users --------

// CreateUser inserts an operator account. The caller hashes the
// credential before storing.
func (s *Store) CreateUser(u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return model.User{}, ErrDuplicateUsername
		}
	}

	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()

	stored := u
	s.users[stored.ID] = &stored
	return u, nil
}

// UserByUsername returns the account with the given username.
func (s *Store) UserByUsername(username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return *u, nil
		}
	}
	return model.User{}, ErrUserNotFound
}

// UserByID returns the account with the given identifier.
func (s *Store) UserByID(id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return *u, nil
}
