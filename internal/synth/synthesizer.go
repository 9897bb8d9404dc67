package synth

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Synthesizer draws phrases from a Corpus.
// It is safe for concurrent use.
type Synthesizer struct {
	corpus *Corpus

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithRand sets the random source. Tests use a seeded source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Synthesizer) {
		s.rng = rng
	}
}

// NewSynthesizer creates a Synthesizer over corpus.
func NewSynthesizer(corpus *Corpus, opts ...Option) *Synthesizer {
	s := &Synthesizer{corpus: corpus}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		now := uint64(time.Now().UnixNano()) //nolint:gosec // seed only
		s.rng = rand.New(rand.NewPCG(now, now>>1)) //nolint:gosec // not used for security
	}
	return s
}

// Synthesize returns one phrase.
//
// It fails with ErrEmptyCorpus when no templates are loaded and with
// EmptyPoolError when a registered pool has no words. Placeholders that
// have no registered pool are left in the phrase unchanged.
func (s *Synthesizer) Synthesize() (string, error) {
	if err := s.corpus.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	phrase := s.corpus.templates[s.rng.IntN(len(s.corpus.templates))]
	for _, placeholder := range s.corpus.order {
		phrase = s.substitute(phrase, placeholder, s.corpus.pools[placeholder])
	}
	return phrase, nil
}

// SynthesizeN returns count phrases, drawn independently.
func (s *Synthesizer) SynthesizeN(count int) ([]string, error) {
	phrases := make([]string, 0, max(count, 0))
	for range count {
		phrase, err := s.Synthesize()
		if err != nil {
			return nil, err
		}
		phrases = append(phrases, phrase)
	}
	return phrases, nil
}

// substitute replaces each occurrence of placeholder with its own random
// word. Inserted words are never rescanned, so a word that contains the
// placeholder text cannot cause repeated expansion.
func (s *Synthesizer) substitute(template, placeholder string, words []string) string {
	if !strings.Contains(template, placeholder) {
		return template
	}

	parts := strings.Split(template, placeholder)
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		b.WriteString(words[s.rng.IntN(len(words))])
		b.WriteString(part)
	}
	return b.String()
}
