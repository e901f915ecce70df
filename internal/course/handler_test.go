package course

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/notify"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/oidc"
	outbox "github.com/ovaphlow/pitchfork/service-microburst/internal/outbox/entity"
)

type oneSlot struct{ b *notify.Broadcaster }

type deliveryLog struct {
	msgs []outbox.Message
	err  error
}

func (d *deliveryLog) ListByCourse(context.Context, string) ([]outbox.Message, error) {
	return d.msgs, d.err
}

func (o oneSlot) Notifier(http.ResponseWriter, *http.Request) *notify.Broadcaster { return o.b }

func newHandler(t *testing.T) (*Handler, *fixture, *notify.Broadcaster) {
	h, f, b, _ := newHandlerWithLog(t)
	return h, f, b
}

func newHandlerWithLog(t *testing.T) (*Handler, *fixture, *notify.Broadcaster, *deliveryLog) {
	f := newFixture(t, nil)
	b := notify.New(clockwork.NewFakeClock())
	log := &deliveryLog{}
	return NewHandler(f.svc, log, oneSlot{b}, nil), f, b, log
}

func asUser(r *http.Request, sub string) *http.Request {
	return r.WithContext(oidc.WithSubject(r.Context(), sub))
}

func TestHandlerGetOtherOwnerIsNotFound(t *testing.T) {
	h, f, b := newHandler(t)
	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("active"))
	f.mock.ExpectQuery("FROM lessons").WillReturnRows(sqlmock.NewRows(lessonCols))

	req := httptest.NewRequest(http.MethodGet, "/microburst-api/courses/c1", nil)
	req.SetPathValue("id", "c1")
	w := httptest.NewRecorder()
	h.Get(w, asUser(req, "intruder"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"course not found"}`, w.Body.String())
	assert.Equal(t, notify.Error, b.Current().Severity)
}

func TestHandlerGetIncludesDeliveries(t *testing.T) {
	h, f, _, log := newHandlerWithLog(t)
	log.msgs = []outbox.Message{{ID: "m1", LessonID: "l1", CourseID: "c1", Status: outbox.StatusSent, CreatedAt: start}}
	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("active"))
	f.mock.ExpectQuery("FROM lessons").WillReturnRows(sqlmock.NewRows(lessonCols).
		AddRow("l1", "c1", 1, "Chapter 1", "pages", nil, start, nil, "pending"))

	req := httptest.NewRequest(http.MethodGet, "/microburst-api/courses/c1", nil)
	req.SetPathValue("id", "c1")
	w := httptest.NewRecorder()
	h.Get(w, asUser(req, "u1"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"id":"c1"`)
	assert.Contains(t, w.Body.String(), `"deliveries":[{"id":"m1","lesson_id":"l1"`)
}

func TestHandlerGetDeliveryLogError(t *testing.T) {
	h, f, b, log := newHandlerWithLog(t)
	log.err = errors.New("conn reset")
	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("active"))
	f.mock.ExpectQuery("FROM lessons").WillReturnRows(sqlmock.NewRows(lessonCols))

	req := httptest.NewRequest(http.MethodGet, "/microburst-api/courses/c1", nil)
	req.SetPathValue("id", "c1")
	w := httptest.NewRecorder()
	h.Get(w, asUser(req, "u1"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "list deliveries: conn reset", b.Current().Text)
}

func TestHandlerUpdateCourseStatusLookupErrors(t *testing.T) {
	h, f, _ := newHandler(t)
	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/microburst-api/courses/c1/status", strings.NewReader(`{"status":"paused"}`))
		req.SetPathValue("id", "c1")
		w := httptest.NewRecorder()
		h.UpdateCourseStatus(w, asUser(req, "u1"))
		return w
	}

	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnError(sql.ErrNoRows)
	assert.Equal(t, http.StatusNotFound, call().Code)

	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnError(errors.New("conn reset"))
	w := call()
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"conn reset"}`, w.Body.String())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandlerCreateMultipart(t *testing.T) {
	h, f, b := newHandler(t)
	f.ingestor.stubs = chapters(20)
	f.mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE courses SET total_lessons").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO lessons").WillReturnResult(sqlmock.NewResult(0, 20))
	f.mock.ExpectCommit()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"name": "Go", "type": "pdf", "delivery_schedule": "weekdays", "delivery_time": "07:30", "phone_number": "+15550001",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", "go.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/microburst-api/courses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.Create(w, asUser(req, "u1"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"total_lessons":20`)
	assert.Equal(t, "go.pdf", f.ingestor.got.FileName)
	msg := b.Current()
	assert.Equal(t, notify.Success, msg.Severity)
	assert.Equal(t, "Your course has been created successfully!", msg.Text)
}

func TestHandlerUpdateLessonStatus(t *testing.T) {
	h, f, b := newHandler(t)
	f.mock.ExpectQuery("SELECT c.user_id FROM lessons").WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	f.mock.ExpectQuery("UPDATE lessons SET status").
		WillReturnRows(sqlmock.NewRows(lessonCols).AddRow("l1", "c1", 1, "t", "x", nil, start, nil, "skipped"))

	req := httptest.NewRequest(http.MethodPatch, "/microburst-api/lessons/l1/status", strings.NewReader(`{"status":"skipped"}`))
	req.SetPathValue("id", "l1")
	w := httptest.NewRecorder()
	h.UpdateLessonStatus(w, asUser(req, "u1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lesson marked as skipped", b.Current().Text)
}

func TestHandlerBadPayload(t *testing.T) {
	h, _, _ := newHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/microburst-api/messages", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	h.SendMessage(w, asUser(req, "u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(ErrLessonClosed))
	assert.Equal(t, http.StatusBadGateway, statusFor(&IngestError{Err: assert.AnError}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
