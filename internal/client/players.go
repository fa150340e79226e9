package client

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/portalvoice/pkg/audio"
)

// FilePlayer writes every clip to Dir as reply-NNN.<ext>, numbered in
// playback order. Useful for inspecting replies without a sound device.
type FilePlayer struct {
	Dir string

	mu    sync.Mutex
	n     int
	files []string
}

// Play writes clip to the next numbered file.
func (p *FilePlayer) Play(ctx context.Context, clip []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("file player: %w", err)
	}
	p.n++
	name := filepath.Join(p.Dir, fmt.Sprintf("reply-%03d.%s", p.n, audio.DetectFormat(clip)))
	if err := os.WriteFile(name, clip, 0o644); err != nil {
		return fmt.Errorf("file player: %w", err)
	}
	p.files = append(p.files, name)
	return nil
}

// Files returns the written paths in order.
func (p *FilePlayer) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

// CommandPlayer pipes each clip to an external program on stdin, e.g.
// ffplay -nodisp -autoexit -loglevel quiet -
type CommandPlayer struct {
	Name string
	Args []string
}

// DefaultCommandPlayer plays through ffplay.
func DefaultCommandPlayer() *CommandPlayer {
	return &CommandPlayer{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}}
}

// Play runs the command and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, clip []byte) error {
	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	cmd.Stdin = bytes.NewReader(clip)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command player %s: %w: %s", p.Name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// DurationPlayer waits for the playback length of each clip without making a
// sound. Scale multiplies the wait; zero means real time.
type DurationPlayer struct {
	Scale float64

	// OnPlay, if set, is called with each clip's length before waiting.
	OnPlay func(time.Duration)
}

// Play blocks for the clip's duration or until ctx is done.
func (p *DurationPlayer) Play(ctx context.Context, clip []byte) error {
	d, err := audio.Duration(clip)
	if err != nil {
		return fmt.Errorf("duration player: %w", err)
	}
	if p.OnPlay != nil {
		p.OnPlay(d)
	}
	if p.Scale > 0 {
		d = time.Duration(float64(d) * p.Scale)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
