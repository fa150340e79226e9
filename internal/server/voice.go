package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/portalvoice/internal/intent"
	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/internal/synth"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

const (
	// formOverhead is allowed on top of the audio cap for the other parts
	// and multipart framing.
	formOverhead = 1 << 20

	// multipartMemory is kept in memory before parts spill to disk.
	multipartMemory = 8 << 20
)

// submission is one parsed POST /api/voice request.
type submission struct {
	audio   *stt.Audio
	message string
	voice   string
}

func (s submission) input() string {
	if s.audio != nil {
		return "audio"
	}
	return "text"
}

// Voice answers POST /api/voice. The form carries an "audio" file or a
// "message" text, plus an optional "channel" naming the voice.
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := observe.StartSpan(r.Context(), "server.Voice")
	defer span.End()
	r = r.WithContext(ctx)

	h.metrics.ActiveSubmissions.Add(ctx, 1)
	defer h.metrics.ActiveSubmissions.Add(ctx, -1)

	input := "unknown"
	resp, err := func() (*types.VoiceResponse, error) {
		sub, err := h.parse(w, r)
		if err != nil {
			return nil, err
		}
		input = sub.input()
		return h.handle(ctx, sub)
	}()

	status := http.StatusOK
	if err != nil {
		observe.Fail(span, err)
		status = writeError(w, r, err)
	} else {
		writeJSON(w, http.StatusOK, resp)
	}

	outcome := "ok"
	switch {
	case status >= 500:
		outcome = "error"
	case status >= 400:
		outcome = "rejected"
	}
	span.SetAttributes(attribute.String("submission.input", input), attribute.Int("http.status", status))
	h.metrics.RecordSubmission(ctx, input, outcome, time.Since(start))
}

// parse reads the form, applying the upload cap and voice selection.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(multipartMemory)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return submission{}, badRequest(msgTooLarge, err)
		}
		return submission{}, badRequest(msgBadRequest, err)
	}

	sub := submission{message: strings.TrimSpace(r.FormValue("message"))}

	sub.voice = strings.TrimSpace(r.FormValue("channel"))
	if sub.voice == "" {
		sub.voice = h.voices.Default()
	}
	if !h.voices.Has(sub.voice) {
		return submission{}, badRequest(msgUnknownVoice, fmt.Errorf("channel %q", sub.voice))
	}

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["audio"]; len(files) > 0 && files[0].Size > 0 {
			fh := files[0]
			if fh.Size > h.maxUpload {
				return submission{}, badRequest(msgTooLarge, fmt.Errorf("%d bytes exceeds %d", fh.Size, h.maxUpload))
			}
			f, err := fh.Open()
			if err != nil {
				return submission{}, fmt.Errorf("server: open audio part: %w", err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return submission{}, fmt.Errorf("server: read audio part: %w", err)
			}
			sub.audio = &stt.Audio{
				Data:        data,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Language:    h.language,
			}
		}
	}

	if sub.audio == nil && sub.message == "" {
		return submission{}, badRequest(msgNoInput, nil)
	}
	return sub, nil
}

// handle runs transcript, intent and synthesis for one submission.
func (h *Handler) handle(ctx context.Context, sub submission) (*types.VoiceResponse, error) {
	transcript, err := h.transcript(ctx, sub)
	if err != nil {
		return nil, err
	}

	result, err := h.router.Resolve(ctx, transcript.Text)
	if err != nil {
		return nil, err
	}

	out, err := h.pipeline.Synthesize(ctx, result, sub.voice)
	if err != nil {
		return nil, err
	}

	resp := &types.VoiceResponse{QuestionText: transcript.Text}
	switch res := result.(type) {
	case intent.PlainAnswer:
		if out.Failed(synth.FieldPrimary) || out.Primary == "" {
			return nil, fmt.Errorf("server: answer audio: %w", out.Err())
		}
		resp.ResponseText = res.Text
		resp.ResponseAudioBase64 = out.Primary
	case intent.OpenLink:
		if err := fillAction(resp, res.Payload(), out); err != nil {
			return nil, err
		}
	case intent.CloseLink:
		if err := fillAction(resp, res.Payload(), out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("server: unsupported result %T", result)
	}
	return resp, nil
}

// fillAction writes an action response. response_text carries the payload
// JSON that browser clients parse; failed voice fields are left out.
func fillAction(resp *types.VoiceResponse, payload intent.ActionPayload, out *synth.Output) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("server: encode action: %w", err)
	}
	resp.ResponseText = string(raw)
	resp.ResponseAudioBase64 = types.PlaceholderAudio
	resp.Action = payload.Action
	resp.URL = payload.URL
	resp.AnswerActionVoice = out.Action
	resp.DescriptionVoice = out.Description
	return nil
}

// transcript produces the user's words from audio or the typed message.
func (h *Handler) transcript(ctx context.Context, sub submission) (types.Transcript, error) {
	if sub.audio == nil {
		return types.Transcript{Text: sub.message, Origin: types.OriginTyped}, nil
	}
	if h.stt == nil {
		return types.Transcript{}, badRequest(msgAudioDisabled, nil)
	}

	if h.sttTO > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sttTO)
		defer cancel()
	}
	ctx, span := observe.StartSpan(ctx, "server.transcribe")
	defer span.End()

	start := time.Now()
	tr, err := h.stt.Transcribe(ctx, *sub.audio)
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.ObserveCall(ctx, observe.StageSTT, "stt", status, time.Since(start))

	switch {
	case errors.Is(err, stt.ErrTooLarge):
		return types.Transcript{}, badRequest(msgTooLarge, err)
	case errors.Is(err, stt.ErrEmptyAudio):
		return types.Transcript{}, badRequest(msgNoInput, err)
	case err != nil:
		observe.Fail(span, err)
		return types.Transcript{}, fmt.Errorf("server: transcribe: %w", err)
	}

	tr.Text = strings.TrimSpace(tr.Text)
	if tr.Text == "" {
		// Silence or unintelligible speech.
		return types.Transcript{}, badRequest(msgNoInput, errors.New("empty transcript"))
	}
	return tr, nil
}
