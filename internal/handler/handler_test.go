package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/config"
	"attendtrack/internal/handler"
	"attendtrack/internal/metrics"
	"attendtrack/internal/model"
	"attendtrack/internal/report"
	"attendtrack/internal/scan"
	"attendtrack/internal/store"
)

// stubResolver satisfies scan.FaceResolver without a running face
// service.
type stubResolver struct {
	match scan.FaceMatch
	err   error
}

func (s stubResolver) Resolve(context.Context, string) (scan.FaceMatch, error) {
	return s.match, s.err
}
func (s stubResolver) Health(context.Context) error { return nil }

type testEnv struct {
	router *gin.Engine
	store  *store.Store
	cfg    config.App
	face   *stubResolver
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		JWTIssuer:     "attendtrack",
		JWTSigningKey: "test-signing-key",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}
	st := store.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := attendance.NewService(st, attendance.DefaultFaceThreshold, logger)
	face := &stubResolver{}

	h := handler.New(st, svc, report.NewBuilder(st, svc), face, nil, cfg, logger, metrics.New())
	router := gin.New()
	h.RegisterRoutes(router)

	return &testEnv{router: router, store: st, cfg: cfg, face: face}
}

func (e *testEnv) seedUser(t *testing.T, username, password string, role model.Role) model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := e.store.CreateUser(model.User{
		Username: username, Password: string(hashed), Role: role, Name: username,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) token(t *testing.T, user model.User) string {
	t.Helper()
	pair, err := auth.Issue(user, e.cfg.JWTIssuer, e.cfg.JWTSigningKey, e.cfg.AccessTTL, e.cfg.RefreshTTL)
	require.NoError(t, err)
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) seedStudent(t *testing.T, admissionNo, name string) model.Student {
	t.Helper()
	student, err := e.store.CreateStudent(model.Student{
		AdmissionNo: admissionNo, Name: name, ClassName: "10", Section: "A", RollNo: 1,
	})
	require.NoError(t, err)
	return student
}

func TestLogin(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "asha", "password123", model.RoleTeacher)

	w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": "asha", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	tokens := body["tokens"].(map[string]any)
	assert.NotEmpty(t, tokens["access_token"])
	user := body["user"].(map[string]any)
	assert.NotContains(t, user, "password", "hash never leaves the server")

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": "asha", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": "ghost", "password": "password123"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthGuards(t *testing.T) {
	env := newEnv(t)
	teacher := env.seedUser(t, "teach", "password123", model.RoleTeacher)
	admin := env.seedUser(t, "boss", "password123", model.RoleAdmin)
	student := env.seedStudent(t, "A-1", "Asha")

	t.Run("missing token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/students", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/students", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("teacher cannot delete students", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/v1/students/"+student.ID, env.token(t, teacher), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin can", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/v1/students/"+student.ID, env.token(t, admin), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestCreateStudentEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))

	payload := gin.H{
		"admission_no": "A-1", "name": "Asha", "class_name": "10", "section": "A", "roll_no": 12,
	}
	w := env.do(t, http.MethodPost, "/v1/students", token, payload)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["qr_payload"])

	t.Run("duplicate admission number conflicts", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/students", token, payload)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing fields rejected at binding", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/students", token, gin.H{"name": "No Admission"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list is name sorted", func(t *testing.T) {
		env.seedStudent(t, "A-0", "Zoya")
		env.seedStudent(t, "A-9", "Anil")
		w := env.do(t, http.MethodGet, "/v1/students", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		students := body["students"].([]any)
		require.Len(t, students, 3)
		assert.Equal(t, "Anil", students[0].(map[string]any)["name"])
		assert.Equal(t, "Zoya", students[2].(map[string]any)["name"])
	})
}

func TestMarkManualEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))
	student := env.seedStudent(t, "A-1", "Asha")

	payload := gin.H{"student_id": student.ID, "date": "2026-03-02", "status": "present"}
	w := env.do(t, http.MethodPost, "/v1/attendance/manual", token, payload)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("double mark conflicts", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/manual", token, payload)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "already marked", decode(t, w)["error"])
	})

	t.Run("unknown student", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/manual", token,
			gin.H{"student_id": "ghost", "date": "2026-03-02", "status": "present"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown status rejected at binding", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/manual", token,
			gin.H{"student_id": student.ID, "date": "2026-03-03", "status": "sleeping"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("listing the day", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/attendance?date=2026-03-02", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), decode(t, w)["count"])
	})
}

func TestMarkQREndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))
	student := env.seedStudent(t, "A-1", "Asha")

	w := env.do(t, http.MethodPost, "/v1/attendance/qr", token, gin.H{"payload": student.QRPayload})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Asha", body["student"].(map[string]any)["name"])

	t.Run("malformed payload", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/qr", token, gin.H{"payload": "not json"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "malformed payload", decode(t, w)["error"])
	})

	t.Run("rescan same day conflicts", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/qr", token, gin.H{"payload": student.QRPayload})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestMarkFaceEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))
	student := env.seedStudent(t, "A-1", "Asha")

	t.Run("confidence below threshold", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/face", token,
			gin.H{"student_id": student.ID, "confidence": 79})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "confidence too low", decode(t, w)["error"])
	})

	t.Run("threshold value accepted", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/face", token,
			gin.H{"student_id": student.ID, "confidence": 80})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("image url goes through the resolver", func(t *testing.T) {
		other := env.seedStudent(t, "A-2", "Binod")
		env.face.match = scan.FaceMatch{StudentID: other.ID, Confidence: 92}
		w := env.do(t, http.MethodPost, "/v1/attendance/face", token,
			gin.H{"image_url": "https://cdn.example/img.jpg"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, float64(92), decode(t, w)["confidence"])
	})

	t.Run("resolver failure is a bad gateway", func(t *testing.T) {
		env.face.err = errors.New("service down")
		defer func() { env.face.err = nil }()
		w := env.do(t, http.MethodPost, "/v1/attendance/face", token,
			gin.H{"image_url": "https://cdn.example/img.jpg"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("neither identity nor image", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/attendance/face", token, gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatsEndpoints(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))

	a := env.seedStudent(t, "A-1", "Asha")
	b := env.seedStudent(t, "A-2", "Binod")
	env.seedStudent(t, "A-3", "Charu")
	for _, id := range []string{a.ID, b.ID} {
		w := env.do(t, http.MethodPost, "/v1/attendance/manual", token,
			gin.H{"student_id": id, "date": "2026-03-02", "status": "present"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("daily", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/stats/daily?date=2026-03-02", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, float64(3), body["total_students"])
		assert.Equal(t, float64(2), body["present"])
		assert.Equal(t, float64(1), body["absent"])
		assert.InDelta(t, 66.67, body["attendance_rate"].(float64), 0.01)
	})

	t.Run("classwise follows known classes", func(t *testing.T) {
		_, err := env.store.CreateClass(model.Class{ClassName: "10", Section: "A"})
		require.NoError(t, err)
		w := env.do(t, http.MethodGet, "/v1/stats/classwise?date=2026-03-02", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		classes := decode(t, w)["classes"].([]any)
		require.Len(t, classes, 1)
		assert.Equal(t, "10-A", classes[0].(map[string]any)["key"])
	})

	t.Run("bad date", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/stats/daily?date=03-2026", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStudentHistoryAndPercentage(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "boss", "password123", model.RoleAdmin)
	token := env.token(t, admin)
	student := env.seedStudent(t, "A-1", "Asha")

	for date, status := range map[string]string{
		"2026-03-02": "present", "2026-03-03": "absent", "2026-03-04": "late",
	} {
		w := env.do(t, http.MethodPost, "/v1/attendance/manual", token,
			gin.H{"student_id": student.ID, "date": date, "status": status})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("history honors the range", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/students/"+student.ID+"/history?from=2026-03-02&to=2026-03-03", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), decode(t, w)["count"])
	})

	t.Run("percentage counts late as present", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/students/"+student.ID+"/percentage", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.InDelta(t, 66.67, decode(t, w)["percentage"].(float64), 0.01)
	})

	t.Run("history survives deletion", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/v1/students/"+student.ID, token, nil)
		require.Equal(t, http.StatusNoContent, w.Code)
		w = env.do(t, http.MethodGet, "/v1/students/"+student.ID+"/history", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(3), decode(t, w)["count"])
	})
}

func TestReportsEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))
	student := env.seedStudent(t, "A-1", "Asha")
	w := env.do(t, http.MethodPost, "/v1/attendance/manual", token,
		gin.H{"student_id": student.ID, "date": "2026-03-02", "status": "present"})
	require.Equal(t, http.StatusCreated, w.Code)

	base := "/v1/reports?from=2026-03-01&to=2026-03-31"

	t.Run("structured rows", func(t *testing.T) {
		w := env.do(t, http.MethodGet, base+"&kind=monthly", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "monthly", body["kind"])
		rows := body["rows"].([]any)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(100), rows[0].(map[string]any)["percentage"])
	})

	t.Run("csv download", func(t *testing.T) {
		w := env.do(t, http.MethodGet, base+"&format=csv", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, w.Body.String(), "A-1")
	})

	t.Run("pdf download", func(t *testing.T) {
		w := env.do(t, http.MethodGet, base+"&format=pdf", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
	})

	t.Run("unsupported format", func(t *testing.T) {
		w := env.do(t, http.MethodGet, base+"&format=docx", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inverted range", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/reports?from=2026-03-31&to=2026-03-01", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStudentQRCodeEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))
	student := env.seedStudent(t, "A-1", "Asha")

	w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/students/%s/qrcode", student.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	t.Run("unknown student", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/v1/students/ghost/qrcode", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestClassEndpoints(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "boss", "password123", model.RoleAdmin)
	token := env.token(t, admin)

	w := env.do(t, http.MethodPost, "/v1/classes", token, gin.H{"class_name": "10", "section": "A"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	w = env.do(t, http.MethodGet, "/v1/classes", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = env.do(t, http.MethodPatch, "/v1/classes/"+id, token, gin.H{"section": "B"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B", decode(t, w)["section"])

	w = env.do(t, http.MethodDelete, "/v1/classes/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBulkCreateStudentsEndpoint(t *testing.T) {
	env := newEnv(t)
	token := env.token(t, env.seedUser(t, "teach", "password123", model.RoleTeacher))
	env.seedStudent(t, "A-1", "Already Here")

	file := excelize.NewFile()
	defer file.Close()
	sheet := file.GetSheetName(file.GetActiveSheetIndex())
	for r, row := range [][]interface{}{
		{"Admission No", "Name", "Class", "Section", "Roll"},
		{"A-1", "Duplicate", "10", "A", 1},
		{"A-2", "Binod", "10", "A", 2},
		{"", "No Admission", "10", "A", 3},
	} {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, file.SetCellValue(sheet, cell, v))
		}
	}
	workbook, err := file.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "students.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/students/bulk", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Len(t, out["created"].([]any), 1)
	assert.Len(t, out["failed"].([]any), 1, "duplicate admission number")
	assert.Len(t, out["skipped_rows"].([]any), 1, "row without admission number")
}

func TestCreateUserEndpoint(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "boss", "password123", model.RoleAdmin)
	teacher := env.seedUser(t, "teach", "password123", model.RoleTeacher)

	payload := gin.H{"username": "new-teacher", "password": "longenough", "role": "teacher", "name": "New Teacher"}

	t.Run("teacher forbidden", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/users", env.token(t, teacher), payload)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin creates", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/users", env.token(t, admin), payload)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "teacher", decode(t, w)["role"])
	})

	t.Run("short password rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/v1/users", env.token(t, admin),
			gin.H{"username": "x", "password": "short", "role": "teacher", "name": "X"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
