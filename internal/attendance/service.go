// Package attendance enforces the one-record-per-student-per-day rule
// and computes derived statistics over recorded days.
package attendance

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attendtrack/internal/model"
	"attendtrack/internal/scan"
	"attendtrack/internal/store"
)

var (
	// ErrLowConfidence rejects face-sourced submissions below the
	// configured threshold. They never reach the marking path.
	ErrLowConfidence = errors.New("face match confidence below threshold")

	// ErrInvalidInput covers malformed dates and non-enum status or
	// method values.
	ErrInvalidInput = errors.New("invalid attendance input")
)

// DefaultFaceThreshold is the minimum accepted face-match confidence,
// inclusive, on a 0-100 scale.
const DefaultFaceThreshold = 80

// Service validates and records attendance events against the store.
type Service struct {
	store         *store.Store
	faceThreshold float64
	logger        *slog.Logger
}

// NewService creates a marker backed by the given store.
func NewService(st *store.Store, faceThreshold float64, logger *slog.Logger) *Service {
	if faceThreshold <= 0 {
		faceThreshold = DefaultFaceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, faceThreshold: faceThreshold, logger: logger}
}

// Mark records attendance for a student on a date. It fails when the
// student is unknown, the input is malformed, or a record already exists
// for the (student, date) pair. A duplicate is terminal; the caller must
// not retry.
func (s *Service) Mark(studentID, date string, status model.Status, method model.Method, markedBy string) (model.AttendanceRecord, error) {
	if studentID == "" {
		return model.AttendanceRecord{}, fmt.Errorf("%w: student id required", ErrInvalidInput)
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if !status.Valid() {
		return model.AttendanceRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if !method.Valid() {
		return model.AttendanceRecord{}, fmt.Errorf("%w: unknown method %q", ErrInvalidInput, method)
	}

	if _, err := s.store.StudentByID(studentID); err != nil {
		return model.AttendanceRecord{}, err
	}

	rec, err := s.store.PutAttendance(model.AttendanceRecord{
		StudentID: studentID,
		Date:      date,
		Status:    status,
		Method:    method,
		MarkedBy:  markedBy,
	})
	if err != nil {
		return model.AttendanceRecord{}, err
	}

	s.logger.Info("attendance marked",
		"student_id", studentID, "date", date, "status", status, "method", method)
	return rec, nil
}

// MarkByQR resolves a raw QR payload to a student and marks them present
// for today. The payload carries both the internal identifier and the
// admission number; the admission number is the fallback lookup key.
func (s *Service) MarkByQR(payload, markedBy string) (model.AttendanceRecord, model.Student, error) {
	data, err := scan.DecodePayload(payload)
	if err != nil {
		return model.AttendanceRecord{}, model.Student{}, err
	}

	st, err := s.store.StudentByID(data.StudentID)
	if err != nil {
		st, err = s.store.StudentByAdmissionNo(data.AdmissionNo)
		if err != nil {
			return model.AttendanceRecord{}, model.Student{}, err
		}
	}

	rec, err := s.Mark(st.ID, today(), model.StatusPresent, model.MethodQR, markedBy)
	if err != nil {
		return model.AttendanceRecord{}, model.Student{}, err
	}
	return rec, st, nil
}

// MarkByFace marks a face-matched student present for today. The
// confidence gate is inclusive: a score equal to the threshold passes.
func (s *Service) MarkByFace(studentID string, confidence float64, markedBy string) (model.AttendanceRecord, model.Student, error) {
	if confidence < s.faceThreshold {
		return model.AttendanceRecord{}, model.Student{}, fmt.Errorf("%w: %.1f < %.1f",
			ErrLowConfidence, confidence, s.faceThreshold)
	}

	st, err := s.store.StudentByID(studentID)
	if err != nil {
		return model.AttendanceRecord{}, model.Student{}, err
	}

	rec, err := s.Mark(st.ID, today(), model.StatusPresent, model.MethodFace, markedBy)
	if err != nil {
		return model.AttendanceRecord{}, model.Student{}, err
	}
	return rec, st, nil
}

// FaceThreshold returns the configured minimum confidence.
func (s *Service) FaceThreshold() float64 { return s.faceThreshold }

func today() string {
	return time.Now().UTC().Format(model.DateLayout)
}
