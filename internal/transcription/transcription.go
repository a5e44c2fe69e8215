package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-insights-go/internal/logger"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Safe wraps a Transcriber so failures degrade to an empty transcript.
type Safe struct {
	inner Transcriber
	log   *logger.Logger
}

func NewSafe(inner Transcriber, log *logger.Logger) *Safe {
	if log == nil {
		log = logger.Discard()
	}
	return &Safe{inner: inner, log: log.Component("transcription")}
}

// Transcribe never returns an error; the bool reports whether it succeeded.
func (s *Safe) Transcribe(ctx context.Context, path string) (string, bool) {
	if s.inner == nil {
		s.log.WithField("path", path).Warn("no transcriber configured")
		return "", false
	}
	text, err := s.inner.Transcribe(ctx, path)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warn("transcription failed, continuing with empty transcript")
		return "", false
	}
	return text, true
}

// Mock returns a fixed transcript; enabled with USE_MOCK_TRANSCRIBE=true.
type Mock struct {
	Text string
}

const MockTranscript = "MOCK TRANSCRIPT: Customer says they face pricing issues and want refund."

func (m Mock) Transcribe(ctx context.Context, path string) (string, error) {
	if m.Text == "" {
		return MockTranscript, nil
	}
	return m.Text, nil
}

// Command runs a local speech-to-text CLI with the audio path as its last
// argument and returns stdout.
type Command struct {
	Args    []string
	Timeout time.Duration
}

func (c *Command) Transcribe(ctx context.Context, path string) (string, error) {
	if len(c.Args) == 0 {
		return "", errors.New("transcribe command not configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	args := append(append([]string(nil), c.Args[1:]...), path)
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("transcribe command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

// HTTP talks to a hosted transcription service: publish, poll, download.
type HTTP struct {
	Host         string
	Client       *http.Client
	PollInterval time.Duration
	MaxPolls     int
	RetryWindow  time.Duration
	log          *logger.Logger
}

func NewHTTP(host string, log *logger.Logger) *HTTP {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTP{
		Host:         strings.TrimRight(host, "/"),
		Client:       &http.Client{Timeout: 12 * time.Second},
		PollInterval: 1500 * time.Millisecond,
		MaxPolls:     40,
		RetryWindow:  12 * time.Second,
		log:          log.Component("transcription.http"),
	}
}

type PublishSuccessResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"`
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

func (h *HTTP) Transcribe(ctx context.Context, path string) (string, error) {
	if h.Host == "" {
		return "", errors.New("TRANSCRIBE_URL not set")
	}
	mediaID, existingURL, err := h.publish(ctx, path)
	if err != nil {
		return "", err
	}
	if existingURL != "" {
		return h.download(ctx, existingURL)
	}
	finalURL, err := h.poll(ctx, mediaID)
	if err != nil {
		return "", err
	}
	h.log.WithField("final_url", finalURL).Info("download final transcript")
	return h.download(ctx, finalURL)
}

// publish sends remote recordings by link and local files as an upload.
func (h *HTTP) publish(ctx context.Context, path string) (string, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		_ = w.WriteField("callRecordingLink", path)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", "", fmt.Errorf("open audio: %w", err)
		}
		part, err := w.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return "", "", fmt.Errorf("encode audio: %w", err)
		}
	}
	_ = w.WriteField("callType", "PNS")
	_ = w.Close()

	body := b.Bytes()
	newReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Host+"/transcribe", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}
	var resp PublishSuccessResponse
	if err := h.doJSON(ctx, newReq, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.ToLower(resp.Data.Status) == "success" {
		return "", resp.Data.TranscriptionURL, nil
	}
	if resp.Data.MediaId == "" {
		return "", "", errors.New("transcribe publish returned no media id")
	}
	return resp.Data.MediaId, "", nil
}

func (h *HTTP) poll(ctx context.Context, mediaID string) (string, error) {
	u, err := url.Parse(h.Host + "/getstatus")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()

	for i := 0; i < h.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(h.PollInterval):
		}
		newReq := func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		}
		var s StatusResponse
		if err := h.doJSON(ctx, newReq, &s); err != nil {
			h.log.WithError(err).Warn("polling failed")
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.TranscriptionTextURL, nil
		case "Queued", "Processing":
			continue
		case "Failed":
			return "", fmt.Errorf("transcription failed: %s", s.Reason)
		}
	}
	return "", fmt.Errorf("transcription timeout")
}

func (h *HTTP) download(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download failed: %s", string(b))
	}
	return string(b), nil
}

// doJSON retries server errors and undecodable bodies with exponential
// backoff. A fresh request is built per attempt so bodies can be re-sent.
func (h *HTTP) doJSON(ctx context.Context, newReq func() (*http.Request, error), target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = h.RetryWindow
	var lastErr error
	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := h.Client.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("client error (%d): %s", resp.StatusCode, string(body))
			return backoff.Permanent(lastErr)
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
