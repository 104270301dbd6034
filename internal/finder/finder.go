// Package finder ties decoding, fingerprinting, matching and the skip list
// into one duplicate-detection run.
package finder

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"mediadupes/internal/decode"
	"mediadupes/internal/hash"
	"mediadupes/internal/match"
	"mediadupes/internal/models"
	"mediadupes/internal/scan"
	"mediadupes/internal/skip"
)

// Options configures a Finder
type Options struct {
	// Threshold is the inclusive minimum similarity (0-100).
	// Nil selects the variant's default; zero reports every pair.
	Threshold *float64
	// IncludeRotations also matches images rotated by 90, 180 or 270 degrees
	IncludeRotations bool
	// Variant selects the fingerprint algorithm; empty means advanced
	Variant hash.Variant
	// OnProgress receives fingerprint and compare progress from FindDuplicates
	OnProgress func(models.Progress)
	// Decoder turns records into samples; nil reads from the filesystem
	Decoder decode.Decoder

	Workers   int
	BatchSize int
	Logger    *slog.Logger
}

// DefaultOptions returns the advanced variant with rotations enabled
func DefaultOptions() Options {
	return Options{
		IncludeRotations: true,
		Variant:          hash.VariantAdvanced,
		Workers:          1,
		BatchSize:        match.DefaultBatchSize,
	}
}

// Finder finds perceptually duplicate images
type Finder struct {
	config    hash.Config
	threshold float64
	opts      Options
	store     skip.Store
	scanner   *scan.Scanner
	logger    *slog.Logger
}

// New creates a Finder. A nil store keeps skipped pairs in memory.
func New(store skip.Store, opts Options) (*Finder, error) {
	variant, err := hash.ParseVariant(string(opts.Variant))
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = skip.NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := match.DefaultThreshold(variant)
	if opts.Threshold != nil {
		threshold = *opts.Threshold
		if threshold < 0 || threshold > 100 {
			return nil, fmt.Errorf("threshold %v out of range [0, 100]", threshold)
		}
	}

	cfg := hash.NewConfig(variant, opts.IncludeRotations)
	return &Finder{
		config:    cfg,
		threshold: threshold,
		opts:      opts,
		store:     store,
		scanner: scan.NewScanner(cfg,
			scan.WithWorkers(opts.Workers),
			scan.WithDecoder(opts.Decoder),
			scan.WithLogger(logger),
		),
		logger: logger,
	}, nil
}

// Config returns the fingerprint configuration in use
func (f *Finder) Config() hash.Config {
	return f.config
}

// Threshold returns the effective similarity threshold
func (f *Finder) Threshold() float64 {
	return f.threshold
}

// Events runs detection lazily. It yields fingerprint progress and excluded
// images first, then compare progress and pairs in discovery order. The
// sequence ends early on cancellation or a compare error, each reported as
// an error event.
func (f *Finder) Events(ctx context.Context, records []models.ImageRecord) iter.Seq[models.Event] {
	return func(yield func(models.Event) bool) {
		skipped := f.skipSnapshot(ctx)
		records := uniqueRecords(records)

		fps := make(map[string]*hash.Fingerprint, len(records))
		done := 0
		for r := range f.scanner.Fingerprints(ctx, records) {
			done++
			if r.Err != nil {
				f.logger.Warn("finder: excluding image", "id", r.Record.ID, "path", r.Record.FilePath, "error", r.Err)
				ex := &models.ExcludedImage{Record: r.Record, Reason: r.Err.Error()}
				if !yield(models.Event{Type: models.EventExcluded, Excluded: ex}) {
					return
				}
			} else {
				fps[r.Record.ID] = r.Fingerprint
			}
			progress := models.Progress{Stage: models.StageFingerprint, Done: done, Total: len(records)}
			if !yield(models.Event{Type: models.EventProgress, Progress: progress}) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield(models.Event{Type: models.EventError, Err: err})
			return
		}

		matcher := match.NewMatcher(f.threshold,
			match.WithSkipSet(skipped),
			match.WithBatchSize(f.opts.BatchSize),
			match.WithLogger(f.logger),
		)
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		for ev := range matcher.Pairs(ctx, ids, fps) {
			if !yield(ev) {
				return
			}
		}
	}
}

// FindDuplicates runs detection to completion. Pairs are sorted by
// descending similarity; images that could not be read are listed in
// Excluded rather than failing the run.
func (f *Finder) FindDuplicates(ctx context.Context, records []models.ImageRecord) (*models.ScanResult, error) {
	result := &models.ScanResult{TotalImages: len(records)}

	for ev := range f.Events(ctx, records) {
		switch ev.Type {
		case models.EventError:
			return nil, ev.Err
		case models.EventExcluded:
			result.Excluded = append(result.Excluded, *ev.Excluded)
		case models.EventPair:
			result.Pairs = append(result.Pairs, *ev.Pair)
		case models.EventProgress:
			if f.opts.OnProgress != nil {
				f.opts.OnProgress(ev.Progress)
			}
		}
	}

	match.SortPairs(result.Pairs)
	f.logger.Info("finder: run complete",
		"images", result.TotalImages,
		"excluded", len(result.Excluded),
		"pairs", len(result.Pairs),
		"config", f.config.String(),
	)
	return result, nil
}

// SkipDuplicatePair records (a, b) as not duplicates. Future runs never
// report the pair, in either order.
func (f *Finder) SkipDuplicatePair(ctx context.Context, a, b string) error {
	if err := f.store.Skip(ctx, a, b); err != nil {
		f.logger.Error("finder: failed to save skipped pair", "pair", models.PairKey(a, b), "error", err)
		return err
	}
	return nil
}

// ClearSkippedPairs forgets every skipped pair
func (f *Finder) ClearSkippedPairs(ctx context.Context) error {
	if err := f.store.Clear(ctx); err != nil {
		f.logger.Error("finder: failed to clear skipped pairs", "error", err)
		return err
	}
	return nil
}

// IsSkipped reports whether (a, b) is in the skip list
func (f *Finder) IsSkipped(ctx context.Context, a, b string) bool {
	return f.skipSnapshot(ctx).IsSkipped(a, b)
}

// skipSnapshot loads the skip list, treating a read failure as empty
func (f *Finder) skipSnapshot(ctx context.Context) skip.Set {
	set, err := f.store.Load(ctx)
	if err != nil {
		f.logger.Warn("finder: failed to load skipped pairs, continuing without them", "error", err)
		return skip.NewSet()
	}
	return set
}

// uniqueRecords drops records whose id was already seen, keeping the
// first occurrence
func uniqueRecords(records []models.ImageRecord) []models.ImageRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.ImageRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
