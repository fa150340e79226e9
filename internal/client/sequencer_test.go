package client_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/portalvoice/internal/client"
	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/types"
)

type recordingPlayer struct {
	mu    sync.Mutex
	clips []string
	errOn string
}

func (p *recordingPlayer) Play(_ context.Context, clip []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errOn != "" && string(clip) == p.errOn {
		return errors.New("device busy")
	}
	p.clips = append(p.clips, string(clip))
	return nil
}

func (p *recordingPlayer) played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clips...)
}

func b64(s string) string { return audio.EncodeBase64([]byte(s)) }

func TestSequencer_PlaysInOrderThenFinalizes(t *testing.T) {
	t.Parallel()

	p := &recordingPlayer{}
	seq := client.NewSequencer(p, nil)

	var order []string
	finalized := 0
	err := seq.PlayAll(context.Background(), []string{b64("satu"), b64("dua"), b64("tiga")}, func() {
		finalized++
		order = append(order, p.played()...)
	})
	if err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if finalized != 1 {
		t.Errorf("finalize ran %d times, want 1", finalized)
	}
	if want := []string{"satu", "dua", "tiga"}; !slices.Equal(order, want) {
		t.Errorf("played before finalize = %q, want %q", order, want)
	}
}

func TestSequencer_EmptyQueueFinalizesImmediately(t *testing.T) {
	t.Parallel()

	finalized := 0
	if err := client.NewSequencer(&recordingPlayer{}, nil).PlayAll(context.Background(), nil, func() { finalized++ }); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if finalized != 1 {
		t.Errorf("finalize ran %d times, want 1", finalized)
	}
}

func TestSequencer_FailureStopsAndFinalizesOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		player *recordingPlayer
		clips  []string
		played []string
	}{
		{
			name:   "playback error",
			player: &recordingPlayer{errOn: "dua"},
			clips:  []string{b64("satu"), b64("dua"), b64("tiga")},
			played: []string{"satu"},
		},
		{
			name:   "undecodable clip",
			player: &recordingPlayer{},
			clips:  []string{b64("satu"), "%%%not-base64", b64("tiga")},
			played: []string{"satu"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			finalized := 0
			err := client.NewSequencer(tc.player, nil).PlayAll(context.Background(), tc.clips, func() { finalized++ })
			if err == nil {
				t.Error("PlayAll: want error")
			}
			if finalized != 1 {
				t.Errorf("finalize ran %d times, want 1", finalized)
			}
			if got := tc.player.played(); !slices.Equal(got, tc.played) {
				t.Errorf("played = %q, want %q", got, tc.played)
			}
		})
	}
}

func TestClipsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *types.VoiceResponse
		want []string
	}{
		{
			name: "plain answer",
			resp: &types.VoiceResponse{ResponseAudioBase64: "QQ=="},
			want: []string{"QQ=="},
		},
		{
			name: "action with both voices",
			resp: &types.VoiceResponse{Action: "open_link", ResponseAudioBase64: "-", AnswerActionVoice: "QQ==", DescriptionVoice: "Qg=="},
			want: []string{"QQ==", "Qg=="},
		},
		{
			name: "action without description",
			resp: &types.VoiceResponse{Action: "close_link", ResponseAudioBase64: "-", AnswerActionVoice: "QQ=="},
			want: []string{"QQ=="},
		},
		{
			name: "placeholder only",
			resp: &types.VoiceResponse{ResponseAudioBase64: "-"},
			want: nil,
		},
		{
			name: "nil response",
			resp: nil,
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := client.ClipsFor(tc.resp); !slices.Equal(got, tc.want) {
				t.Errorf("ClipsFor = %q, want %q", got, tc.want)
			}
		})
	}
}
