package model

import (
	"encoding/json"
	"time"
)

// Status is the recorded attendance outcome for a student on a day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Valid reports whether the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	default:
		return false
	}
}

// Method is the channel through which an attendance event was captured.
type Method string

const (
	MethodQR     Method = "qr"
	MethodFace   Method = "face"
	MethodManual Method = "manual"
	MethodNone   Method = ""
)

// Valid reports whether the method is a supported value.
func (m Method) Valid() bool {
	switch m {
	case MethodQR, MethodFace, MethodManual, MethodNone:
		return true
	default:
		return false
	}
}

// DateLayout is the calendar-day format used everywhere attendance dates
// appear. Range queries compare these strings lexicographically, which is
// only correct for this layout.
const DateLayout = "2006-01-02"

// Student represents an enrolled student.
type Student struct {
	ID             string    `json:"id"`
	AdmissionNo    string    `json:"admission_no"`
	Name           string    `json:"name"`
	ClassName      string    `json:"class_name"`
	Section        string    `json:"section"`
	RollNo         int       `json:"roll_no"`
	Email          string    `json:"email,omitempty"`
	Contact        string    `json:"contact,omitempty"`
	ParentContact  string    `json:"parent_contact,omitempty"`
	PhotoRef       string    `json:"photo_ref,omitempty"`
	FaceDescriptor []float32 `json:"face_descriptor,omitempty"`
	QRPayload      string    `json:"qr_payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// StudentPatch carries the fields a partial student update may change.
// Nil fields are left untouched. AdmissionNo is immutable and has no
// patch field.
type StudentPatch struct {
	Name           *string   `json:"name,omitempty"`
	ClassName      *string   `json:"class_name,omitempty"`
	Section        *string   `json:"section,omitempty"`
	RollNo         *int      `json:"roll_no,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Contact        *string   `json:"contact,omitempty"`
	ParentContact  *string   `json:"parent_contact,omitempty"`
	PhotoRef       *string   `json:"photo_ref,omitempty"`
	FaceDescriptor []float32 `json:"face_descriptor,omitempty"`
}

// Apply merges the patch into the student.
func (p StudentPatch) Apply(st *Student) {
	if p.Name != nil {
		st.Name = *p.Name
	}
	if p.ClassName != nil {
		st.ClassName = *p.ClassName
	}
	if p.Section != nil {
		st.Section = *p.Section
	}
	if p.RollNo != nil {
		st.RollNo = *p.RollNo
	}
	if p.Email != nil {
		st.Email = *p.Email
	}
	if p.Contact != nil {
		st.Contact = *p.Contact
	}
	if p.ParentContact != nil {
		st.ParentContact = *p.ParentContact
	}
	if p.PhotoRef != nil {
		st.PhotoRef = *p.PhotoRef
	}
	if p.FaceDescriptor != nil {
		st.FaceDescriptor = p.FaceDescriptor
	}
}

// AttendanceRecord is a single marked day for a student. At most one
// record exists per (student, date) pair.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	Method    Method    `json:"method"`
	MarkedBy  string    `json:"marked_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendancePatch carries the fields a partial attendance update may
// change. The (student, date) key is immutable.
type AttendancePatch struct {
	Status   *Status `json:"status,omitempty"`
	Method   *Method `json:"method,omitempty"`
	MarkedBy *string `json:"marked_by,omitempty"`
}

// Apply merges the patch into the record.
func (p AttendancePatch) Apply(rec *AttendanceRecord) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Method != nil {
		rec.Method = *p.Method
	}
	if p.MarkedBy != nil {
		rec.MarkedBy = *p.MarkedBy
	}
}

// Class groups students for filtering and dashboards. Enrollment itself
// lives denormalized on Student; the two are independently owned.
type Class struct {
	ID        string    `json:"id"`
	ClassName string    `json:"class_name"`
	Section   string    `json:"section"`
	TeacherID string    `json:"teacher_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the dashboard grouping key for the class.
func (c Class) Key() string {
	return c.ClassName + "-" + c.Section
}

// ClassPatch carries the fields a partial class update may change.
type ClassPatch struct {
	ClassName *string `json:"class_name,omitempty"`
	Section   *string `json:"section,omitempty"`
	TeacherID *string `json:"teacher_id,omitempty"`
}

// Apply merges the patch into the class.
func (p ClassPatch) Apply(c *Class) {
	if p.ClassName != nil {
		c.ClassName = *p.ClassName
	}
	if p.Section != nil {
		c.Section = *p.Section
	}
	if p.TeacherID != nil {
		c.TeacherID = *p.TeacherID
	}
}

// Role is a user's access level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Valid reports whether the role is a supported value.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// User is an operator account. Password holds a bcrypt hash.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QRData is the envelope encoded into a student's QR code. It is derived
// from the admission number at creation time and never changes.
type QRData struct {
	StudentID   string `json:"student_id"`
	AdmissionNo string `json:"admission_no"`
	Name        string `json:"name"`
}

// Encode renders the envelope as the canonical JSON payload string.
func (q QRData) Encode() string {
	b, _ := json.Marshal(q)
	return string(b)
}
