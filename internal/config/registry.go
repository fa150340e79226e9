package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/provider/tts"
	"github.com/MrWong99/portalvoice/pkg/provider/vad"
)

// ErrProviderNotRegistered means no factory is known under the entry's name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-factory table.
type factories[T any] struct {
	kind   string
	byName map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, byName: map[string]Factory[T]{}}
}

func (f factories[T]) build(e ProviderEntry) (T, error) {
	fn, ok := f.byName[e.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return fn(e)
}

// Registry turns provider entries into providers. Binaries register the
// backends they link; the app only ever sees the interfaces. A later
// registration under the same name replaces the earlier one.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
	tts factories[tts.Provider]
	vad factories[vad.Engine]
}

func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
		vad: newFactories[vad.Engine]("vad"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.put(func() { r.llm.byName[name] = f }) }
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.put(func() { r.stt.byName[name] = f }) }
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.put(func() { r.tts.byName[name] = f }) }
func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) { r.put(func() { r.vad.byName[name] = f }) }

func (r *Registry) put(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// CreateLLM builds the LLM named by e.Name. Unknown names wrap
// [ErrProviderNotRegistered]; factory errors are returned as is.
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.build(e)
}

func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.build(e)
}

func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.build(e)
}

func (r *Registry) CreateVAD(e ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vad.build(e)
}

// Names lists the sorted names registered for kind: "llm", "stt", "tts" or
// "vad". Other kinds list nothing.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case r.llm.kind:
		names = slices.Collect(maps.Keys(r.llm.byName))
	case r.stt.kind:
		names = slices.Collect(maps.Keys(r.stt.byName))
	case r.tts.kind:
		names = slices.Collect(maps.Keys(r.tts.byName))
	case r.vad.kind:
		names = slices.Collect(maps.Keys(r.vad.byName))
	}
	slices.Sort(names)
	return names
}
