package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	videoLessonCount    = 30
	videoLessonDuration = 300
	documentChapters    = 20
	pagesPerChapter     = 3
	maxUploadBytes      = 32 << 20
)

var (
	errInvalidPlaylist = errors.New("Invalid YouTube playlist URL")
	errNoFile          = errors.New("No file provided")
)

// Functions serves the processing endpoints. Segmentation is a placeholder:
// a playlist always yields 30 five-minute lessons and a document 20 chapters.
type Functions struct {
	logger *zap.SugaredLogger
}

func NewFunctions(logger *zap.SugaredLogger) *Functions {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Functions{logger: logger}
}

// ProcessYouTube expects {"url": "..."} with a list query parameter.
func (f *Functions) ProcessYouTube(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.fail(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Query().Get("list") == "" {
		f.fail(w, errInvalidPlaylist)
		return
	}

	d := videoLessonDuration
	lessons := make([]Stub, videoLessonCount)
	for i := range lessons {
		lessons[i] = Stub{
			Title:    fmt.Sprintf("Lesson %d", i+1),
			Content:  fmt.Sprintf("Content for lesson %d", i+1),
			Duration: &d,
		}
	}
	f.logger.Debugw("processed playlist", "list", u.Query().Get("list"), "lessons", len(lessons))
	writeJSON(w, http.StatusOK, processResponse{Lessons: lessons})
}

// ProcessPDF expects a multipart "file" field, or {"url": "..."} for an
// already stored document.
func (f *Functions) ProcessPDF(w http.ResponseWriter, r *http.Request) {
	source, err := documentSource(r)
	if err != nil {
		f.fail(w, err)
		return
	}

	lessons := make([]Stub, documentChapters)
	for i := range lessons {
		lessons[i] = Stub{
			Title:   fmt.Sprintf("Chapter %d", i+1),
			Content: fmt.Sprintf("Content from pages %d-%d", i*pagesPerChapter+1, (i+1)*pagesPerChapter),
		}
	}
	f.logger.Debugw("processed document", "source", source, "lessons", len(lessons))
	writeJSON(w, http.StatusOK, processResponse{Lessons: lessons})
}

func documentSource(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
			return "", errNoFile
		}
		return req.URL, nil
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", errNoFile
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return "", errNoFile
	}
	defer file.Close()
	return hdr.Filename, nil
}

func (f *Functions) fail(w http.ResponseWriter, err error) {
	f.logger.Debugw("processing rejected", "err", err)
	writeJSON(w, http.StatusBadRequest, processResponse{Error: err.Error()})
}

// CORS answers preflight requests and sets permissive headers on the rest.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
