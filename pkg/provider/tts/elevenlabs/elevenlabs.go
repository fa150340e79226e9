// Package elevenlabs speaks through the ElevenLabs stream-input WebSocket.
// One Synthesize call opens one stream: the text goes up in a single
// message, and base64 MP3 frames come back until the server flags the last.
package elevenlabs

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/portalvoice/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// maxFrameBytes bounds one server message; frames carry base64 audio.
	maxFrameBytes = 8 << 20
)

var _ tts.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel picks the model, e.g. "eleven_multilingual_v2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat picks an "mp3_<rate>_<bitrate>" format. Other families
// are rejected by New because the stitcher cannot join them.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithVoice sets the voice used when a request names none.
func WithVoice(voiceID string) Option {
	return func(p *Provider) { p.voiceID = voiceID }
}

// WithVoiceSettings tunes stability and similarity boost, both in [0, 1].
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) { p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity} }
}

// WithBaseURL replaces the wss:// origin.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	voiceID      string
	settings     voiceSettings
}

func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	for _, o := range opts {
		o(p)
	}
	if container(p.outputFormat) != "mp3" {
		return nil, fmt.Errorf("elevenlabs: output format %q is not mp3", p.outputFormat)
	}
	return p, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// outbound is every client message. The first carries the key and settings
// with a single space as text; an empty text ends the input.
type outbound struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.outputFormat}}
	return p.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// Synthesize implements tts.Provider. req.Voice.ID overrides the default
// voice; one of them must be set.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	voiceID := cmp.Or(req.Voice.ID, p.voiceID)
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voiceID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(maxFrameBytes)

	for _, m := range []outbound{
		{Text: " ", VoiceSettings: &p.settings, XiAPIKey: p.apiKey},
		{Text: strings.TrimSpace(req.Text) + " "},
		{},
	} {
		if err := wsjson.Write(ctx, conn, m); err != nil {
			return nil, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	clip, err := receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(clip) == 0 {
		return nil, tts.ErrEmptyAudio
	}
	return &tts.Result{Audio: clip, Format: "mp3"}, nil
}

// receive joins decoded frames until the final flag or a normal close.
func receive(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var clip bytes.Buffer
	for {
		var r audioResponse
		if err := wsjson.Read(ctx, conn, &r); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return clip.Bytes(), nil
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		if r.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s: %s", r.Error, r.Message)
		}
		if r.Audio != "" {
			frame, err := base64.StdEncoding.DecodeString(r.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio frame: %w", err)
			}
			clip.Write(frame)
		}
		if r.IsFinal {
			return clip.Bytes(), nil
		}
	}
}

// container maps "mp3_44100_128" to "mp3".
func container(outputFormat string) string {
	name, _, _ := strings.Cut(outputFormat, "_")
	return name
}
