package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// Player plays one encoded clip and returns when playback has finished.
type Player interface {
	Play(ctx context.Context, clip []byte) error
}

// Sequencer plays the clips of one response strictly in order.
type Sequencer struct {
	player Player
	log    *slog.Logger
}

// NewSequencer returns a Sequencer that plays through p. A nil logger selects
// slog.Default().
func NewSequencer(p Player, log *slog.Logger) *Sequencer {
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{player: p, log: log}
}

// ClipsFor returns the playback queue for resp: the action voice followed by
// the description voice for action responses, otherwise the answer clip.
// Empty clips and the placeholder are skipped.
func ClipsFor(resp *types.VoiceResponse) []string {
	if resp == nil {
		return nil
	}
	var clips []string
	add := func(c string) {
		if c != "" && c != types.PlaceholderAudio {
			clips = append(clips, c)
		}
	}
	if resp.IsAction() || resp.ResponseAudioBase64 == types.PlaceholderAudio {
		add(resp.AnswerActionVoice)
		add(resp.DescriptionVoice)
		return clips
	}
	add(resp.ResponseAudioBase64)
	return clips
}

// PlayAll decodes and plays clips in order, advancing only after each clip
// has finished. finalize runs exactly once: after the last clip, at once for
// an empty queue, or after the first failure, which skips the rest.
func (s *Sequencer) PlayAll(ctx context.Context, clips []string, finalize func()) error {
	if finalize != nil {
		defer finalize()
	}
	for i, c := range clips {
		data, err := audio.DecodeBase64(c)
		if err != nil {
			s.log.Warn("client: clip not decodable, stopping playback", "clip", i, "err", err)
			return fmt.Errorf("client: clip %d: %w", i, err)
		}
		if err := s.player.Play(ctx, data); err != nil {
			s.log.Warn("client: playback failed, stopping", "clip", i, "err", err)
			return fmt.Errorf("client: play clip %d: %w", i, err)
		}
	}
	return nil
}

// Handle plays the clips of resp and then calls finalize.
func (s *Sequencer) Handle(ctx context.Context, resp *types.VoiceResponse, finalize func()) error {
	return s.PlayAll(ctx, ClipsFor(resp), finalize)
}
