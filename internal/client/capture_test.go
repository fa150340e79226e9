package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/portalvoice/internal/client"
	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/types"
)

type fakeDetector struct {
	mu      sync.Mutex
	running bool
	starts  int
	pauses  int
}

func (d *fakeDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.starts++
	return nil
}

func (d *fakeDetector) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.pauses++
	return nil
}

func (d *fakeDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *fakeDetector) counts() (starts, pauses int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.pauses
}

type fakeSubmitter struct {
	mu    sync.Mutex
	audio [][]byte
	texts []string
	resp  *types.VoiceResponse
	err   error
	block chan struct{}
}

func (s *fakeSubmitter) wait(ctx context.Context) error {
	if s.block == nil {
		return nil
	}
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSubmitter) SubmitAudio(ctx context.Context, wav []byte) (*types.VoiceResponse, error) {
	s.mu.Lock()
	s.audio = append(s.audio, wav)
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.resp, s.err
}

func (s *fakeSubmitter) SubmitText(ctx context.Context, text string) (*types.VoiceResponse, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.resp, s.err
}

func (s *fakeSubmitter) submissions() (audio int, texts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio), append([]string(nil), s.texts...)
}

func newCapture(t *testing.T, cfg client.CaptureConfig) *client.Capture {
	t.Helper()
	c, err := client.NewCapture(cfg)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

func TestCapture_SpeechRoundTrip(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{}
	sub := &fakeSubmitter{resp: &types.VoiceResponse{QuestionText: "halo"}}
	var (
		fbMu     sync.Mutex
		feedback []client.Feedback
	)
	c := newCapture(t, client.CaptureConfig{
		Detector:  det,
		Submitter: sub,
		OnFeedback: func(f client.Feedback) {
			fbMu.Lock()
			feedback = append(feedback, f)
			fbMu.Unlock()
		},
	})
	if got := c.State(); got != client.StateListening {
		t.Fatalf("State after Start = %s, want listening", got)
	}

	c.OnSpeechStart()
	c.OnSpeechEnd(make([]float32, 1600))
	c.Wait()

	if got := c.State(); got != client.StateListening {
		t.Errorf("State after completion = %s, want listening", got)
	}
	starts, pauses := det.counts()
	if starts != 2 || pauses != 1 {
		t.Errorf("detector starts=%d pauses=%d, want 2 and 1", starts, pauses)
	}

	sub.mu.Lock()
	wav := sub.audio[0]
	sub.mu.Unlock()
	if audio.DetectFormat(wav) != audio.ContainerWAV {
		t.Fatal("uploaded audio is not a WAV")
	}
	_, info, err := audio.ReadWAV(wav)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("upload format = %+v, want 16 kHz mono 16-bit", info)
	}
	if n, _ := audio.WAVFrames(wav); n != 1600 {
		t.Errorf("upload frames = %d, want 1600", n)
	}

	fbMu.Lock()
	defer fbMu.Unlock()
	want := []client.Feedback{client.FeedbackListening, client.FeedbackCapturing, client.FeedbackSubmitting, client.FeedbackListening}
	if len(feedback) != len(want) {
		t.Fatalf("feedback = %v, want %v", feedback, want)
	}
	for i := range want {
		if feedback[i] != want[i] {
			t.Errorf("feedback[%d] = %s, want %s", i, feedback[i], want[i])
		}
	}
}

func TestCapture_SingleSubmissionInFlight(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: &types.VoiceResponse{}, block: make(chan struct{})}
	c := newCapture(t, client.CaptureConfig{Detector: &fakeDetector{}, Submitter: sub})

	c.OnSpeechEnd(make([]float32, 160))
	if got := c.State(); got != client.StateSubmitting {
		t.Fatalf("State = %s, want submitting", got)
	}
	c.OnSpeechStart()
	c.OnSpeechEnd(make([]float32, 160))
	if err := c.SubmitText("buka portal"); !errors.Is(err, client.ErrSubmissionInFlight) {
		t.Errorf("SubmitText while busy = %v, want ErrSubmissionInFlight", err)
	}

	close(sub.block)
	c.Wait()

	n, texts := sub.submissions()
	if n != 1 || len(texts) != 0 {
		t.Errorf("submissions audio=%d texts=%v, want exactly one audio submission", n, texts)
	}
	if got := c.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
	if got := c.State(); got != client.StateListening {
		t.Errorf("State = %s, want listening", got)
	}
}

func TestCapture_SubmitText(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{}
	sub := &fakeSubmitter{resp: &types.VoiceResponse{}}
	c := newCapture(t, client.CaptureConfig{Detector: det, Submitter: sub})

	if err := c.SubmitText("   "); !errors.Is(err, client.ErrEmptyText) {
		t.Errorf("SubmitText(blank) = %v, want ErrEmptyText", err)
	}
	if err := c.SubmitText("  buka portal "); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	c.Wait()

	if _, texts := sub.submissions(); len(texts) != 1 || texts[0] != "buka portal" {
		t.Errorf("texts = %q, want [\"buka portal\"]", texts)
	}
	if !det.Running() {
		t.Error("detector should be running again after completion")
	}
}

func TestCapture_ErrorClearsGuard(t *testing.T) {
	t.Parallel()

	errDown := errors.New("server down")
	var got error
	var mu sync.Mutex
	sub := &fakeSubmitter{err: errDown}
	c := newCapture(t, client.CaptureConfig{
		Detector:  &fakeDetector{},
		Submitter: sub,
		OnResponse: func(*types.VoiceResponse) {
			t.Error("OnResponse must not run for a failed submission")
		},
		OnError: func(err error) {
			mu.Lock()
			got = err
			mu.Unlock()
		},
	})

	c.OnSpeechEnd(make([]float32, 160))
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(got, errDown) {
		t.Errorf("OnError got %v, want %v", got, errDown)
	}
	if s := c.State(); s != client.StateListening {
		t.Errorf("State = %s, want listening", s)
	}
}

func TestCapture_ResponseHookOwnsCompletion(t *testing.T) {
	t.Parallel()

	responses := make(chan *types.VoiceResponse, 1)
	sub := &fakeSubmitter{resp: &types.VoiceResponse{ResponseText: "ok"}}
	c := newCapture(t, client.CaptureConfig{
		Detector:   &fakeDetector{},
		Submitter:  sub,
		OnResponse: func(r *types.VoiceResponse) { responses <- r },
	})

	if err := c.SubmitText("halo"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	resp := <-responses
	if resp.ResponseText != "ok" {
		t.Errorf("response = %+v", resp)
	}
	if s := c.State(); s != client.StateSubmitting {
		t.Errorf("State before Complete = %s, want submitting", s)
	}

	c.Complete()
	c.Wait()
	if s := c.State(); s != client.StateListening {
		t.Errorf("State after Complete = %s, want listening", s)
	}
}

func TestCapture_PanickingHookClearsGuard(t *testing.T) {
	t.Parallel()

	c := newCapture(t, client.CaptureConfig{
		Detector:   &fakeDetector{},
		Submitter:  &fakeSubmitter{resp: &types.VoiceResponse{}},
		OnResponse: func(*types.VoiceResponse) { panic("player exploded") },
	})

	c.OnSpeechEnd(make([]float32, 160))
	c.Wait()
	if s := c.State(); s != client.StateListening {
		t.Errorf("State = %s, want listening", s)
	}
}

func TestCapture_CompleteKeepsRunningDetector(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{}
	c := newCapture(t, client.CaptureConfig{Detector: det, Submitter: &fakeSubmitter{}})

	c.Complete()
	if starts, _ := det.counts(); starts != 1 {
		t.Errorf("detector starts = %d, want 1 (already running)", starts)
	}
}

func TestCapture_WithSequencer(t *testing.T) {
	t.Parallel()

	player := &recordingPlayer{}
	seq := client.NewSequencer(player, nil)
	resp := &types.VoiceResponse{
		Action:              "open_link",
		ResponseAudioBase64: types.PlaceholderAudio,
		AnswerActionVoice:   audio.EncodeBase64([]byte("action")),
		DescriptionVoice:    audio.EncodeBase64([]byte("description")),
	}

	var c *client.Capture
	c = newCapture(t, client.CaptureConfig{
		Detector:  &fakeDetector{},
		Submitter: &fakeSubmitter{resp: resp},
		OnResponse: func(r *types.VoiceResponse) {
			_ = seq.Handle(context.Background(), r, c.Complete)
		},
	})

	if err := c.SubmitText("buka pendaftaran"); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	c.Wait()

	if got := player.played(); len(got) != 2 || got[0] != "action" || got[1] != "description" {
		t.Errorf("played = %q, want action then description", got)
	}
	if s := c.State(); s != client.StateListening {
		t.Errorf("State = %s, want listening", s)
	}
}

func TestNewCapture_Validation(t *testing.T) {
	t.Parallel()

	if _, err := client.NewCapture(client.CaptureConfig{}); err == nil {
		t.Error("NewCapture with no collaborators: want error")
	}
}
