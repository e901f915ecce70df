package course

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/messaging"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/notify"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/oidc"
	outbox "github.com/ovaphlow/pitchfork/service-microburst/internal/outbox/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan"
)

const maxUploadBytes = 32 << 20

var errBadPayload = errors.New("invalid payload")

// Notices resolves the notification slot of the requesting client.
type Notices interface {
	Notifier(w http.ResponseWriter, r *http.Request) *notify.Broadcaster
}

// DeliveryLog lists the delivery attempts of a course.
type DeliveryLog interface {
	ListByCourse(ctx context.Context, courseID string) ([]outbox.Message, error)
}

type Handler struct {
	svc        *Service
	deliveries DeliveryLog
	notices    Notices
	logger     *zap.SugaredLogger
}

func NewHandler(svc *Service, deliveries DeliveryLog, notices Notices, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, deliveries: deliveries, notices: notices, logger: logger}
}

// courseDetail is the course view: lessons plus the delivery history.
type courseDetail struct {
	*entity.Course
	Deliveries []outbox.Message `json:"deliveries"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type messageRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// List serves the dashboard: ?filter=all|active|completed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	n := h.notices.Notifier(w, r)
	out, err := h.svc.ListCourses(r.Context(), oidc.SubjectFrom(r.Context()), entity.Filter(r.URL.Query().Get("filter")))
	if err != nil {
		h.fail(w, n, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Create accepts the wizard as JSON, or as multipart form data with the
// document in the "file" field.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	n := h.notices.Notifier(w, r)
	in, err := decodeCreate(r)
	if err != nil {
		h.fail(w, n, err)
		return
	}
	in.UserID = oidc.SubjectFrom(r.Context())

	c, err := h.svc.CreateCourse(r.Context(), in)
	if err != nil {
		h.fail(w, n, err)
		return
	}
	n.Show("Your course has been created successfully!", notify.Success)
	writeJSON(w, http.StatusCreated, c)
}

func decodeCreate(r *http.Request) (entity.CreateInput, error) {
	var in entity.CreateInput
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, errBadPayload
		}
		return in, nil
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return in, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	in.Name = r.FormValue("name")
	in.Type = entity.SourceType(r.FormValue("type"))
	in.SourceURL = r.FormValue("source_url")
	in.DeliverySchedule = entity.Schedule(r.FormValue("delivery_schedule"))
	in.DeliveryTime = r.FormValue("delivery_time")
	in.PhoneNumber = r.FormValue("phone_number")
	if file, hdr, err := r.FormFile("file"); err == nil {
		// the multipart form keeps the part until the request ends
		in.File = file
		in.FileName = hdr.Filename
	}
	return in, nil
}

// Get serves the course detail view. Courses of other owners are not found.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	n := h.notices.Notifier(w, r)
	c, err := h.svc.GetCourse(r.Context(), r.PathValue("id"))
	if err == nil && c.UserID != oidc.SubjectFrom(r.Context()) {
		err = ErrNotFound
	}
	if err != nil {
		h.fail(w, n, err)
		return
	}
	out := courseDetail{Course: c, Deliveries: []outbox.Message{}}
	if h.deliveries != nil {
		msgs, err := h.deliveries.ListByCourse(r.Context(), c.ID)
		if err != nil {
			h.fail(w, n, fmt.Errorf("list deliveries: %w", err))
			return
		}
		if msgs != nil {
			out.Deliveries = msgs
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateCourseStatus(w http.ResponseWriter, r *http.Request) {
	n := h.notices.Notifier(w, r)
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, n, errBadPayload)
		return
	}
	id := r.PathValue("id")
	existing, err := h.svc.Courses().Get(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = ErrNotFound
	case err == nil && existing.UserID != oidc.SubjectFrom(r.Context()):
		err = ErrNotFound
	}
	if err != nil {
		h.fail(w, n, err)
		return
	}
	c, err := h.svc.UpdateCourseStatus(r.Context(), id, entity.Status(req.Status))
	if err != nil {
		h.fail(w, n, err)
		return
	}
	n.Show(fmt.Sprintf("Course marked as %s", c.Status), notify.Success)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateLessonStatus(w http.ResponseWriter, r *http.Request) {
	n := h.notices.Notifier(w, r)
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, n, errBadPayload)
		return
	}
	id := r.PathValue("id")
	owner, err := h.svc.LessonOwner(r.Context(), id)
	if err == nil && owner != oidc.SubjectFrom(r.Context()) {
		err = ErrLessonNotFound
	}
	if err != nil {
		h.fail(w, n, err)
		return
	}
	l, err := h.svc.UpdateLessonStatus(r.Context(), id, entity.LessonStatus(req.Status))
	if err != nil {
		h.fail(w, n, err)
		return
	}
	n.Show(fmt.Sprintf("Lesson marked as %s", l.Status), notify.Success)
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	n := h.notices.Notifier(w, r)
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, n, errBadPayload)
		return
	}
	if err := h.svc.SendMessage(r.Context(), req.PhoneNumber, req.Message); err != nil {
		h.fail(w, n, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) fail(w http.ResponseWriter, n *notify.Broadcaster, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("course request failed", "err", err)
	}
	n.Show(err.Error(), notify.Error)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var verr validator.ValidationErrors
	var ierr *IngestError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLessonNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLessonClosed), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyIngested):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrPlaylistRequired), errors.Is(err, ErrDocumentRequired),
		errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, plan.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.As(err, &ierr), errors.Is(err, messaging.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, errBadPayload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
