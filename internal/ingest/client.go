// Package ingest turns a playlist URL or an uploaded document into an ordered
// list of lesson stubs by calling the remote processing functions.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

// SourceType selects the processing endpoint.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourcePDF     SourceType = "pdf"
)

var (
	ErrUnsupportedSource = errors.New("unsupported source type")
	ErrNoLessons         = errors.New("no lessons could be extracted from the source")
)

// Source is the input handed to Process. File, when set, is sent as the
// multipart "file" field; otherwise URL is sent as JSON.
type Source struct {
	Type     SourceType
	URL      string
	FileName string
	File     io.Reader
}

// Stub is one lesson as returned by the processing functions.
type Stub struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Duration *int   `json:"duration,omitempty"`
}

type processResponse struct {
	Lessons []Stub `json:"lessons,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Config for the processing functions.
type Config struct {
	BaseURL string
	Key     string
	Timeout time.Duration
}

// ConfigFromEnv reads FUNCTIONS_URL and FUNCTIONS_KEY.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimRight(utilities.EnvOr("FUNCTIONS_URL", "http://localhost:8432/functions/v1"), "/"),
		Key:     utilities.EnvOr("FUNCTIONS_KEY", ""),
		Timeout: 60 * time.Second,
	}
}

// Client calls process-youtube and process-pdf.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.Key,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Process sends the source to the endpoint for its type and returns the
// stubs in order. An empty result is an error.
func (c *Client) Process(ctx context.Context, src Source) ([]Stub, error) {
	var endpoint string
	switch src.Type {
	case SourceYouTube:
		endpoint = "/process-youtube"
	case SourcePDF:
		endpoint = "/process-pdf"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, src.Type)
	}

	body, contentType, err := encode(src)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var out processResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return nil, errors.New(out.Error)
		}
		return nil, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if len(out.Lessons) == 0 {
		return nil, ErrNoLessons
	}
	return out.Lessons, nil
}

func encode(src Source) (io.Reader, string, error) {
	if src.File == nil {
		data, err := json.Marshal(map[string]string{"url": src.URL})
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := src.FileName
	if name == "" {
		name = "document.pdf"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src.File); err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
