package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/portalvoice/pkg/types"
)

// DefaultSubmitTimeout bounds one HTTP submission.
const DefaultSubmitTimeout = 60 * time.Second

// StatusError is returned for non-2xx replies from the server.
type StatusError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: server returned %d (request %s): %s", e.StatusCode, e.RequestID, e.Message)
}

// HTTPSubmitter posts submissions to POST {BaseURL}/api/voice as multipart
// forms.
type HTTPSubmitter struct {
	baseURL string
	voice   string
	client  *http.Client
}

// SubmitterOption configures an HTTPSubmitter.
type SubmitterOption func(*HTTPSubmitter)

// WithVoice sets the channel field. Empty leaves the choice to the server.
func WithVoice(voice string) SubmitterOption {
	return func(s *HTTPSubmitter) { s.voice = voice }
}

// WithHTTPClient replaces the default client, whose timeout is
// [DefaultSubmitTimeout].
func WithHTTPClient(c *http.Client) SubmitterOption {
	return func(s *HTTPSubmitter) { s.client = c }
}

// NewHTTPSubmitter returns a submitter for the server at baseURL.
func NewHTTPSubmitter(baseURL string, opts ...SubmitterOption) *HTTPSubmitter {
	s := &HTTPSubmitter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultSubmitTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitAudio uploads a WAV recording as the audio field.
func (s *HTTPSubmitter) SubmitAudio(ctx context.Context, wav []byte) (*types.VoiceResponse, error) {
	return s.post(ctx, func(w *multipart.Writer) error {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="audio"; filename="speech.wav"`)
		h.Set("Content-Type", "audio/wav")
		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		_, err = part.Write(wav)
		return err
	})
}

// SubmitText sends text as the message field.
func (s *HTTPSubmitter) SubmitText(ctx context.Context, text string) (*types.VoiceResponse, error) {
	return s.post(ctx, func(w *multipart.Writer) error {
		return w.WriteField("message", text)
	})
}

func (s *HTTPSubmitter) post(ctx context.Context, fill func(*multipart.Writer) error) (*types.VoiceResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := fill(w); err != nil {
		return nil, fmt.Errorf("client: build form: %w", err)
	}
	if s.voice != "" {
		if err := w.WriteField("channel", s.voice); err != nil {
			return nil, fmt.Errorf("client: build form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("client: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/voice", &body)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	id := uuid.NewString()
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var e types.ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg, RequestID: id}
	}

	var out types.VoiceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	return &out, nil
}
