package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"call-insights-go/internal/logger"
)

// Tier records which strategy produced a summary.
type Tier string

const (
	TierNone     Tier = "none"
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

const DefaultTimeout = 45 * time.Second

// Summarizer tries the generative tool once under a hard timeout and falls
// back to the extractive summary on any failure. Callers always get a string.
type Summarizer struct {
	gen     Generator
	timeout time.Duration
	log     *logger.Logger
}

// New builds a Summarizer. A nil generator means extractive only.
func New(gen Generator, timeout time.Duration, log *logger.Logger) *Summarizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Summarizer{gen: gen, timeout: timeout, log: log.Component("summarizer")}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) string {
	out, _ := s.SummarizeWithTier(ctx, text)
	return out
}

// SummarizeWithTier is Summarize plus the tier that produced the result.
func (s *Summarizer) SummarizeWithTier(ctx context.Context, text string) (string, Tier) {
	if strings.TrimSpace(text) == "" {
		return "", TierNone
	}
	out, err := s.primary(ctx, text)
	if err == nil {
		return out, TierPrimary
	}
	s.log.WithError(err).Warn("generative summary failed, using extractive fallback")
	return Extractive(text), TierFallback
}

// primary runs one generator call. On timeout the call is abandoned: the
// result channel is buffered so a late answer never blocks the generator.
func (s *Summarizer) primary(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	if s.gen == nil {
		return "", errors.New("no generator configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := s.gen.Generate(ctx, BuildPrompt(text))
		ch <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		out := strings.TrimSpace(r.out)
		if !strings.Contains(out, requiredHeader) {
			return "", ErrMalformedOutput
		}
		return out, nil
	}
}
