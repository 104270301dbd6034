package scan

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"mediadupes/internal/decode"
	"mediadupes/internal/hash"
	"mediadupes/internal/models"
)

// Scanner computes fingerprints for image records
type Scanner struct {
	config  hash.Config
	decoder decode.Decoder
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of images decoded at once
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the timeout for fingerprinting each image
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.timeout = d
	}
}

// WithDecoder replaces the filesystem decoder
func WithDecoder(d decode.Decoder) Option {
	return func(s *Scanner) {
		if d != nil {
			s.decoder = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a Scanner producing fingerprints for cfg.
// By default one image is decoded at a time.
func NewScanner(cfg hash.Config, opts ...Option) *Scanner {
	s := &Scanner{
		config:  cfg,
		decoder: decode.NewFileDecoder(),
		workers: 1,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of fingerprinting one record
type Result struct {
	Index       int
	Record      models.ImageRecord
	Fingerprint *hash.Fingerprint
	Err         error
}

// Fingerprints lazily fingerprints records. With one worker results arrive
// in record order; with more they arrive as they complete. Stopping the
// iteration cancels outstanding work.
func (s *Scanner) Fingerprints(ctx context.Context, records []models.ImageRecord) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		if s.workers <= 1 {
			for i, rec := range records {
				if ctx.Err() != nil {
					return
				}
				fp, err := s.fingerprint(ctx, rec)
				if !yield(Result{Index: i, Record: rec, Fingerprint: fp, Err: err}) {
					return
				}
			}
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make(chan Result)
		go func() {
			var g errgroup.Group
			g.SetLimit(s.workers)
			for i, rec := range records {
				if ctx.Err() != nil {
					break
				}
				g.Go(func() error {
					fp, err := s.fingerprint(ctx, rec)
					select {
					case results <- Result{Index: i, Record: rec, Fingerprint: fp, Err: err}:
					case <-ctx.Done():
					}
					return nil
				})
			}
			g.Wait()
			close(results)
		}()

		for r := range results {
			if !yield(r) {
				cancel()
				for range results {
				}
				return
			}
		}
	}
}

// fingerprint decodes and hashes one record, giving up after the timeout
func (s *Scanner) fingerprint(ctx context.Context, rec models.ImageRecord) (*hash.Fingerprint, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type outcome struct {
		fp  *hash.Fingerprint
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		sample, err := s.decoder.Decode(ctx, rec.FilePath, s.config.Size)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		fp, err := hash.Extract(sample, s.config)
		if err != nil {
			err = fmt.Errorf("failed to fingerprint %s: %w", rec.FilePath, err)
		}
		done <- outcome{fp: fp, err: err}
	}()

	select {
	case o := <-done:
		return o.fp, o.err
	case <-ctx.Done():
		s.logger.Debug("scan: gave up on image", "path", rec.FilePath, "timeout", s.timeout)
		return nil, fmt.Errorf("gave up fingerprinting %s: %w", rec.FilePath, ctx.Err())
	}
}

// Collect walks a folder and returns a record for every supported image.
// Ids are the absolute file paths.
func Collect(folder string) ([]models.ImageRecord, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	var records []models.ImageRecord
	err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if info.IsDir() {
			return nil
		}
		if decode.IsSupportedImage(path) {
			records = append(records, models.ImageRecord{ID: path, FilePath: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}
	return records, nil
}

// CollectFolders collects records from multiple folders
func CollectFolders(folders []string) ([]models.ImageRecord, error) {
	var all []models.ImageRecord
	for _, folder := range folders {
		records, err := Collect(folder)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}
