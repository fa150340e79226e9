// Package mock provides scripted test doubles for the vad interfaces.
package mock

import (
	"sync"

	"github.com/MrWong99/portalvoice/pkg/provider/vad"
)

var (
	_ vad.Engine   = (*Engine)(nil)
	_ vad.Detector = (*Detector)(nil)
)

// Engine hands out Detector, or a fresh scripted Detector when it is nil.
type Engine struct {
	Detector vad.Detector
	OpenErr  error

	mu     sync.Mutex
	opened []vad.Settings
}

func (e *Engine) Open(s vad.Settings) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, s)
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	if e.Detector == nil {
		return &Detector{}, nil
	}
	return e.Detector, nil
}

// Opened returns the settings of every Open call.
func (e *Engine) Opened() []vad.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Settings(nil), e.opened...)
}

// Detector replays Script one event per frame, then answers Steady.
type Detector struct {
	Script []vad.Event
	Steady vad.Event
	Err    error

	mu     sync.Mutex
	frames int
	resets int
	closed int
}

func (d *Detector) Detect(frame []byte) (vad.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	if d.Err != nil {
		return vad.Event{}, d.Err
	}
	if len(d.Script) > 0 {
		ev := d.Script[0]
		d.Script = d.Script[1:]
		return ev, nil
	}
	return d.Steady, nil
}

func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Counts returns how many frames were detected and how often Reset and
// Close were called.
func (d *Detector) Counts() (frames, resets, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames, d.resets, d.closed
}
