package match

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"

	"mediadupes/internal/hash"
	"mediadupes/internal/models"
	"mediadupes/internal/skip"
)

const (
	// DefaultBasicThreshold applies to the single-signal average hash
	DefaultBasicThreshold = 90.0
	// DefaultAdvancedThreshold applies to the blended DCT/color score
	DefaultAdvancedThreshold = 85.0
	// DefaultBatchSize is the number of comparisons between progress events
	DefaultBatchSize = 1000
)

// DefaultThreshold returns the default similarity threshold for a variant
func DefaultThreshold(v hash.Variant) float64 {
	if v == hash.VariantBasic {
		return DefaultBasicThreshold
	}
	return DefaultAdvancedThreshold
}

// Matcher compares every unordered pair of fingerprints.
// The work is O(n^2) comparisons; no index is used.
type Matcher struct {
	threshold  float64
	skipped    skip.Set
	batchSize  int
	progressFn func(models.Progress)
	logger     *slog.Logger
}

// Option configures a Matcher
type Option func(*Matcher)

// WithSkipSet sets the pairs that are never reported
func WithSkipSet(s skip.Set) Option {
	return func(m *Matcher) {
		m.skipped = s
	}
}

// WithBatchSize sets how many comparisons run between progress events
func WithBatchSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithProgress sets a progress callback used by FindPairs
func WithProgress(fn func(models.Progress)) Option {
	return func(m *Matcher) {
		m.progressFn = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMatcher creates a Matcher reporting pairs with similarity >= threshold
func NewMatcher(threshold float64, opts ...Option) *Matcher {
	m := &Matcher{
		threshold: threshold,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pairs lazily compares every pair (ids[i], ids[j]), i < j, and yields
// progress and pair events. Ids without a fingerprint are skipped. The
// sequence stops when the consumer stops iterating, when ctx is done, or
// after an error event.
func (m *Matcher) Pairs(ctx context.Context, ids []string, fps map[string]*hash.Fingerprint) iter.Seq[models.Event] {
	return func(yield func(models.Event) bool) {
		n := len(ids)
		total := n * (n - 1) / 2
		progress := func(done int) models.Event {
			return models.Event{
				Type:     models.EventProgress,
				Progress: models.Progress{Stage: models.StageCompare, Done: done, Total: total},
			}
		}

		if !yield(progress(0)) {
			return
		}

		done := 0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				done++
				if done%m.batchSize == 0 {
					if err := ctx.Err(); err != nil {
						yield(models.Event{Type: models.EventError, Err: err})
						return
					}
					if !yield(progress(done)) {
						return
					}
				}

				a, b := ids[i], ids[j]
				if a == b || m.skipped.IsSkipped(a, b) {
					continue
				}
				fa, fb := fps[a], fps[b]
				if fa == nil || fb == nil {
					continue
				}

				score, err := Compare(fa, fb)
				if err != nil {
					yield(models.Event{
						Type: models.EventError,
						Err:  fmt.Errorf("failed to compare %s and %s: %w", a, b, err),
					})
					return
				}
				if score.Similarity < m.threshold {
					continue
				}

				pair := &models.DuplicatePair{IDA: a, IDB: b, Similarity: score.Similarity, Method: score.Method}
				if !yield(models.Event{Type: models.EventPair, Pair: pair}) {
					return
				}
			}
		}

		if total%m.batchSize != 0 || total == 0 {
			yield(progress(total))
		}
	}
}

// FindPairs runs Pairs to completion and returns the matches sorted by
// descending similarity
func (m *Matcher) FindPairs(ctx context.Context, ids []string, fps map[string]*hash.Fingerprint) ([]models.DuplicatePair, error) {
	var pairs []models.DuplicatePair
	for ev := range m.Pairs(ctx, ids, fps) {
		switch ev.Type {
		case models.EventError:
			return nil, ev.Err
		case models.EventPair:
			pairs = append(pairs, *ev.Pair)
		case models.EventProgress:
			if m.progressFn != nil {
				m.progressFn(ev.Progress)
			}
		}
	}

	SortPairs(pairs)
	m.logger.Debug("match: comparison complete", "images", len(ids), "pairs", len(pairs), "threshold", m.threshold)
	return pairs, nil
}

// SortPairs orders pairs by descending similarity, keeping discovery
// order for ties
func SortPairs(pairs []models.DuplicatePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
}
