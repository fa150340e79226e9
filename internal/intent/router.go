// Package intent turns a transcript into a [Result]: a plain spoken answer,
// or an action that opens or closes a portal page.
//
// Resolution runs two chat completions strictly in sequence. The topic pass
// extracts feature keywords, which are searched in the catalog. The answer
// pass then asks the model for either a plain answer or, when a catalog entry
// matched, a JSON action naming the entry's link.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/portalvoice/internal/catalog"
	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// ErrResolution is returned for every failure of [Router.Resolve]. The cause
// is wrapped and logged.
var ErrResolution = errors.New("intent: resolution failed")

// Config tunes both router passes.
type Config struct {
	// Persona opens the answer-pass system prompt. Empty selects
	// [DefaultPersona].
	Persona string

	TopicMaxTokens   int
	TopicTemperature float64

	AnswerMaxTokens   int
	AnswerTemperature float64

	// Candidates is how many catalog matches are listed in the answer prompt.
	Candidates int

	// Timeout bounds each chat completion. Zero leaves only the caller's
	// deadline.
	Timeout time.Duration
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		Persona:           DefaultPersona,
		TopicMaxTokens:    150,
		TopicTemperature:  0,
		AnswerMaxTokens:   500,
		AnswerTemperature: 0.7,
		Candidates:        5,
	}
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics records pass latencies and outcomes to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router resolves transcripts. It is safe for concurrent use.
type Router struct {
	llm     llm.Provider
	catalog catalog.Lookup
	cfg     Config
	metrics *observe.Metrics
}

// New creates a Router. Non-positive token limits and candidate counts fall
// back to [DefaultConfig].
func New(provider llm.Provider, lookup catalog.Lookup, cfg Config, opts ...Option) (*Router, error) {
	if provider == nil {
		return nil, errors.New("intent: llm provider must not be nil")
	}
	if lookup == nil {
		return nil, errors.New("intent: catalog lookup must not be nil")
	}
	def := DefaultConfig()
	if cfg.TopicMaxTokens <= 0 {
		cfg.TopicMaxTokens = def.TopicMaxTokens
	}
	if cfg.AnswerMaxTokens <= 0 {
		cfg.AnswerMaxTokens = def.AnswerMaxTokens
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = def.Candidates
	}
	r := &Router{llm: provider, catalog: lookup, cfg: cfg}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Resolve classifies transcript and produces exactly one [Result]. Any error
// wraps [ErrResolution].
func (r *Router) Resolve(ctx context.Context, transcript string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "intent.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, strings.TrimSpace(transcript))
	kind := "error"
	if err == nil {
		kind = res.Kind()
	}
	span.SetAttributes(attribute.String("intent.kind", kind))
	if r.metrics != nil {
		r.metrics.RecordIntent(ctx, kind)
	}
	return res, err
}

func (r *Router) resolve(ctx context.Context, transcript string) (Result, error) {
	log := observe.Logger(ctx)
	if transcript == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrResolution)
	}

	topics, err := r.topics(ctx, transcript)
	if err != nil {
		log.Warn("intent: topic pass failed", "err", err)
		return nil, fmt.Errorf("%w: topic pass: %w", ErrResolution, err)
	}

	var matches []catalog.Match
	if len(topics) > 0 {
		matches, err = r.catalog.Search(ctx, topics, r.cfg.Candidates)
		if err != nil {
			log.Error("intent: catalog search failed", "topics", topics, "err", err)
			return nil, fmt.Errorf("%w: catalog: %w", ErrResolution, err)
		}
	}
	log.Debug("intent: topics resolved", "topics", topics, "matches", len(matches))

	reply, err := r.complete(ctx, "answer", answerSystemPrompt(r.cfg.Persona, matches), transcript,
		r.cfg.AnswerMaxTokens, r.cfg.AnswerTemperature)
	if err != nil {
		log.Warn("intent: answer pass failed", "err", err)
		return nil, fmt.Errorf("%w: answer pass: %w", ErrResolution, err)
	}

	res, err := decodeAnswer(reply, matches)
	if err != nil {
		log.Warn("intent: answer decode failed", "reply", reply, "err", err)
		return nil, err
	}
	return res, nil
}

// topics runs the topic pass. Only transport errors are returned; an
// undecodable reply yields no topics.
func (r *Router) topics(ctx context.Context, transcript string) ([]string, error) {
	reply, err := r.complete(ctx, "topic", topicSystemPrompt(), transcript,
		r.cfg.TopicMaxTokens, r.cfg.TopicTemperature)
	if err != nil {
		return nil, err
	}
	topics, err := decodeTopics(reply)
	if err != nil {
		observe.Logger(ctx).Debug("intent: topic reply not decodable, continuing without topics", "reply", reply, "err", err)
		return nil, nil
	}
	return catalog.NormalizeTopics(topics), nil
}

func (r *Router) complete(ctx context.Context, pass, system, transcript string, maxTokens int, temperature float64) (string, error) {
	ctx, span := observe.StartSpan(ctx, "intent."+pass)
	defer span.End()
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []types.Message{{Role: "user", Content: transcript}},
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	})
	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.ObserveCall(ctx, observe.StageChat, pass, status, time.Since(start))
	}
	if err == nil && resp == nil {
		err = errors.New("llm returned no response")
	}
	if err != nil {
		observe.Fail(span, err)
		return "", err
	}
	return resp.Content, nil
}

// decodeTopics parses a topic-pass reply. "null" and an empty list mean no
// topics.
func decodeTopics(reply string) ([]string, error) {
	s := unwrapFence(strings.TrimSpace(reply))
	if s == "" || s == "null" {
		return nil, nil
	}
	var obj struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return obj.Topics, nil
}

// decodeAnswer turns an answer-pass reply into a Result. matches are the
// catalog candidates listed in the prompt, best first. An open_link reply may
// only open one of them: any other url is replaced by the top match, and
// without matches the reply degrades to its spoken answer.
func decodeAnswer(reply string, matches []catalog.Match) (Result, error) {
	s := unwrapFence(strings.TrimSpace(reply))
	if s == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrResolution)
	}

	var act ActionPayload
	if strings.HasPrefix(s, "{") && json.Unmarshal([]byte(s), &act) == nil {
		answer := strings.TrimSpace(act.Answer)
		switch act.Action {
		case ActionOpenLink:
			if len(matches) == 0 {
				if answer == "" {
					return nil, fmt.Errorf("%w: open_link without a catalog match or answer", ErrResolution)
				}
				return PlainAnswer{Text: answer}, nil
			}
			target := matches[0].Entry
			if i := slices.IndexFunc(matches, func(m catalog.Match) bool {
				return m.Entry.URL == strings.TrimSpace(act.URL)
			}); i >= 0 {
				target = matches[i].Entry
			}
			return OpenLink{URL: target.URL, SpokenAnswer: answer, Description: target.Description}, nil
		case ActionCloseLink:
			var desc string
			if len(matches) > 0 {
				desc = matches[0].Entry.Description
			}
			return CloseLink{SpokenAnswer: answer, Description: desc}, nil
		}
	}
	return PlainAnswer{Text: s}, nil
}

// unwrapFence strips a surrounding Markdown code fence such as ```json ... ```.
func unwrapFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyz")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
