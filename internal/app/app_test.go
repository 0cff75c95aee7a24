package app

import (
	"bytes"
	"context"
	"educube_backend/internal/config"
	"educube_backend/internal/model"
	"educube_backend/internal/util"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-at-least-32-characters!"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server:   config.ServerConfig{Port: "0", Mode: gin.TestMode},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "educube.db")},
		JWT:      config.JWTConfig{Secret: testSecret},
		Storage:  config.StorageConfig{LocalPath: filepath.Join(dir, "uploads"), MaxUploadMB: 1},
		Log:      config.LogConfig{Level: "error", File: filepath.Join(dir, "app.log")},
	}

	a, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if a.cron != nil {
			a.cron.Stop()
		}
		a.Close(context.Background())
	})
	return a
}

func token(t *testing.T, userID string, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *App) do(t *testing.T, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, envelope) {
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
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return a.serve(t, req)
}

func (a *App) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func courseBody() gin.H {
	return gin.H{
		"title":    "Go in practice",
		"category": "programming",
		"level":    "beginner",
		"modules": []gin.H{{
			"id":    "m1",
			"title": "Basics",
			"lessons": []gin.H{
				{"id": "l1", "title": "Hello"},
				{"id": "l2", "title": "Types"},
			},
		}},
	}
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)

	w, env := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"database":"up"`)

	w, _ = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthentication(t *testing.T) {
	a := newTestApp(t)
	student := token(t, "s1", model.Student)

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   interface{}
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/enrollments", want: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/enrollments", tok: "nope", want: http.StatusUnauthorized},
		{name: "wrong secret", method: http.MethodGet, path: "/api/enrollments", tok: func() string {
			tok, _ := util.GenerateJWT("s1", model.Student, "another-secret-another-secret-1234", time.Hour)
			return tok
		}(), want: http.StatusUnauthorized},
		{name: "student lists enrollments", method: http.MethodGet, path: "/api/enrollments", tok: student, want: http.StatusOK},
		{name: "student cannot author", method: http.MethodPost, path: "/api/courses", tok: student, body: courseBody(), want: http.StatusForbidden},
		{name: "student cannot upload", method: http.MethodDelete, path: "/api/uploads/resources", tok: student, body: gin.H{"locator": "x.pdf"}, want: http.StatusForbidden},
		{name: "catalog is public", method: http.MethodGet, path: "/api/courses", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := a.do(t, tt.method, tt.path, tt.tok, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want, env.Code)
		})
	}
}

func TestCourseAndProgressFlow(t *testing.T) {
	a := newTestApp(t)
	instructor := token(t, "inst-1", model.Instructor)
	student := token(t, "s1", model.Student)

	w, env := a.do(t, http.MethodPost, "/api/courses", instructor, courseBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	course := decode[model.Course](t, env)
	require.NotEmpty(t, course.ID)
	base := "/api/enrollments/" + course.ID

	// 草稿对学生不可见
	w, _ = a.do(t, http.MethodGet, "/api/courses/"+course.ID, student, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(t, http.MethodPost, base+"/enroll", student, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodPost, "/api/courses/"+course.ID+"/publish", instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodGet, "/api/courses/"+course.ID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, http.MethodPost, base+"/enroll", student, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	enrollment := decode[model.Enrollment](t, env)
	assert.Equal(t, 0.0, enrollment.ProgressPercent)

	w, _ = a.do(t, http.MethodPost, base+"/enroll", student, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate enrollment")

	w, env = a.do(t, http.MethodPost, base+"/progress", student, gin.H{"moduleId": "m1", "lessonId": "l1", "timeSpent": 10, "completed": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	enrollment = decode[model.Enrollment](t, env)
	assert.Equal(t, 50.0, enrollment.ProgressPercent)
	assert.Equal(t, 10, enrollment.TotalTimeSpentMinutes)
	assert.False(t, enrollment.Modules[0].Completed)

	w, _ = a.do(t, http.MethodPost, base+"/complete", student, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "course not finished yet")

	w, _ = a.do(t, http.MethodPost, base+"/progress", student, gin.H{"moduleId": "m1", "lessonId": "nope", "completed": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(t, http.MethodPost, base+"/progress", student, gin.H{"lessonId": "l1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodPost, base+"/resource-complete", student, gin.H{"moduleId": "m1", "resourceId": "r1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = a.do(t, http.MethodPost, base+"/progress", student, gin.H{"moduleId": "m1", "lessonId": "l2", "timeSpent": 5, "completed": true})
	require.Equal(t, http.StatusOK, w.Code)
	enrollment = decode[model.Enrollment](t, env)
	assert.Equal(t, 100.0, enrollment.ProgressPercent)
	assert.Equal(t, 15, enrollment.TotalTimeSpentMinutes)
	assert.True(t, enrollment.Modules[0].Completed)
	assert.True(t, enrollment.Completed)

	w, env = a.do(t, http.MethodPost, base+"/complete", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[model.Enrollment](t, env).Completed)

	w, env = a.do(t, http.MethodGet, base+"/status", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100.0, decode[model.Enrollment](t, env).ProgressPercent)

	w, env = a.do(t, http.MethodGet, "/api/enrollments", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Enrollment](t, env), 1)

	w, env = a.do(t, http.MethodGet, "/api/courses/"+course.ID+"/stats", instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[model.CourseStats](t, env)
	assert.Equal(t, int64(1), stats.Enrolled)
	assert.Equal(t, int64(1), stats.Completed)

	other := token(t, "inst-2", model.Instructor)
	w, _ = a.do(t, http.MethodGet, "/api/courses/"+course.ID+"/stats", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = a.do(t, http.MethodGet, "/api/courses/mine", instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Total int64 `json:"total"`
	}](t, env)
	assert.Equal(t, int64(1), page.Total)
}

func multipartUpload(t *testing.T, path, tok, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestResourceUploadFlow(t *testing.T) {
	a := newTestApp(t)
	instructor := token(t, "inst-1", model.Instructor)
	pdf := []byte("%PDF-1.4\n% educube\n")

	w, env := a.serve(t, multipartUpload(t, "/api/uploads/resources", instructor, "notes.pdf", "application/pdf", pdf))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result struct {
		URL     string `json:"url"`
		Locator string `json:"locator"`
		Storage string `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "local", result.Storage)
	assert.Regexp(t, `^/uploads/\d{14}_[a-z0-9]{6}\.pdf$`, result.URL)

	// 本地文件通过静态路由访问
	w, _ = a.serve(t, httptest.NewRequest(http.MethodGet, result.URL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdf, w.Body.Bytes())

	w, env = a.serve(t, multipartUpload(t, "/api/uploads/resources", instructor, "bundle.zip", "application/zip", []byte("PK\x03\x04")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "invalid file type")

	big := bytes.Repeat([]byte("a"), 2<<20)
	w, _ = a.serve(t, multipartUpload(t, "/api/uploads/resources", instructor, "big.pdf", "application/pdf", big))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodDelete, "/api/uploads/resources", instructor, gin.H{"locator": result.Locator})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodDelete, "/api/uploads/resources", instructor, gin.H{"locator": result.Locator})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
