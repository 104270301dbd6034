package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediadupes/internal/decode"
	"mediadupes/internal/hash"
	"mediadupes/internal/models"
	"mediadupes/internal/testutil"
)

var advanced = hash.NewConfig(hash.VariantAdvanced, true)

// slowDecoder blocks until its context is done
type slowDecoder struct{}

func (slowDecoder) Decode(ctx context.Context, path string, size int) (*decode.Sample, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// collect drains Fingerprints into successes keyed by id and failures
func collect(t *testing.T, s *Scanner, ctx context.Context, records []models.ImageRecord) (map[string]*hash.Fingerprint, []Result) {
	t.Helper()
	fps := make(map[string]*hash.Fingerprint)
	var failed []Result
	for r := range s.Fingerprints(ctx, records) {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		fps[r.Record.ID] = r.Fingerprint
	}
	return fps, failed
}

func writeImages(t *testing.T, dir string, n int) []models.ImageRecord {
	t.Helper()
	var records []models.ImageRecord
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, string(rune('a'+i))+".png")
		testutil.WritePNG(t, path, testutil.Pattern(40, uint64(i+1)))
		records = append(records, models.ImageRecord{ID: path, FilePath: path})
	}
	return records
}

func TestNewScanner_Defaults(t *testing.T) {
	s := NewScanner(advanced)

	if s.workers != 1 {
		t.Errorf("default workers = %d, want 1", s.workers)
	}
	if s.timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", s.timeout)
	}
	if _, ok := s.decoder.(*decode.FileDecoder); !ok {
		t.Errorf("default decoder = %T, want *decode.FileDecoder", s.decoder)
	}
	if s.config != advanced {
		t.Errorf("config = %v, want %v", s.config, advanced)
	}
}

func TestNewScanner_WithWorkers(t *testing.T) {
	s := NewScanner(advanced, WithWorkers(4))
	if s.workers != 4 {
		t.Errorf("workers = %d, want 4", s.workers)
	}

	// Zero workers should not change default
	s = NewScanner(advanced, WithWorkers(0))
	if s.workers != 1 {
		t.Errorf("workers with 0 = %d, want 1", s.workers)
	}

	// Negative workers should not change default
	s = NewScanner(advanced, WithWorkers(-1))
	if s.workers != 1 {
		t.Errorf("workers with -1 = %d, want 1", s.workers)
	}
}

func TestNewScanner_WithTimeout(t *testing.T) {
	s := NewScanner(advanced, WithTimeout(5*time.Second))
	if s.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", s.timeout)
	}
}

func TestCollect_EmptyDirectory(t *testing.T) {
	records, err := Collect(t.TempDir())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if records != nil {
		t.Errorf("expected nil for empty directory, got %d records", len(records))
	}
}

func TestCollect_NoImages(t *testing.T) {
	tmpDir := t.TempDir()

	// Create non-image files
	files := []string{"test.txt", "doc.pdf", "script.sh"}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, f), []byte("content"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	records, err := Collect(tmpDir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if records != nil {
		t.Errorf("expected nil for non-image files, got %d records", len(records))
	}
}

func TestCollect_Recursive(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	writeImages(t, tmpDir, 1)
	writeImages(t, subDir, 1)

	records, err := Collect(tmpDir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (recursive), got %d", len(records))
	}
	for _, r := range records {
		if !filepath.IsAbs(r.ID) || r.ID != r.FilePath {
			t.Errorf("record %+v should use its absolute path as id", r)
		}
	}
}

func TestCollectFolders_Multiple(t *testing.T) {
	tmpDir1 := t.TempDir()
	tmpDir2 := t.TempDir()
	writeImages(t, tmpDir1, 1)
	writeImages(t, tmpDir2, 2)

	records, err := CollectFolders([]string{tmpDir1, tmpDir2})
	if err != nil {
		t.Fatalf("CollectFolders failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records from 2 folders, got %d", len(records))
	}
}

func TestFingerprints_BrokenImageFails(t *testing.T) {
	tmpDir := t.TempDir()
	records := writeImages(t, tmpDir, 5)

	broken := filepath.Join(tmpDir, "broken.jpg")
	if err := os.WriteFile(broken, []byte("not really a jpeg"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	records = append(records, models.ImageRecord{ID: "broken", FilePath: broken})

	fps, failed := collect(t, NewScanner(advanced), context.Background(), records)
	if len(fps) != 5 {
		t.Errorf("expected 5 fingerprints, got %d", len(fps))
	}
	if len(failed) != 1 || failed[0].Record.ID != "broken" {
		t.Fatalf("expected only the broken image to fail, got %+v", failed)
	}
	if failed[0].Index != 5 {
		t.Errorf("failed index = %d, want 5", failed[0].Index)
	}
}

func TestFingerprints_WorkersDoNotChangeResult(t *testing.T) {
	records := writeImages(t, t.TempDir(), 6)

	seq, _ := collect(t, NewScanner(advanced, WithWorkers(1)), context.Background(), records)
	par, _ := collect(t, NewScanner(advanced, WithWorkers(3)), context.Background(), records)

	if len(seq) != 6 || len(par) != 6 {
		t.Fatalf("expected 6 fingerprints each, got %d and %d", len(seq), len(par))
	}
	for _, r := range records {
		if seq[r.ID].Hash.GetHash() != par[r.ID].Hash.GetHash() {
			t.Errorf("hash of %s differs between sequential and parallel runs", r.ID)
		}
	}
}

func TestFingerprints_SequentialOrder(t *testing.T) {
	records := writeImages(t, t.TempDir(), 4)

	i := 0
	for r := range NewScanner(advanced).Fingerprints(context.Background(), records) {
		if r.Index != i || r.Record.ID != records[i].ID {
			t.Errorf("result %d = index %d (%s), want record order", i, r.Index, r.Record.ID)
		}
		i++
	}
	if i != 4 {
		t.Errorf("got %d results, want 4", i)
	}
}

func TestFingerprints_Timeout(t *testing.T) {
	records := []models.ImageRecord{{ID: "slow", FilePath: "slow.png"}}
	s := NewScanner(advanced, WithDecoder(slowDecoder{}), WithTimeout(10*time.Millisecond))

	fps, failed := collect(t, s, context.Background(), records)
	if len(fps) != 0 || len(failed) != 1 {
		t.Fatalf("expected the slow image to fail, got %d fps, %d failed", len(fps), len(failed))
	}
	if !errors.Is(failed[0].Err, context.DeadlineExceeded) {
		t.Errorf("expected a deadline error, got %v", failed[0].Err)
	}
}

func TestFingerprints_Canceled(t *testing.T) {
	records := writeImages(t, t.TempDir(), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 2} {
		fps, failed := collect(t, NewScanner(advanced, WithWorkers(workers)), ctx, records)
		if len(fps) != 0 {
			t.Errorf("workers=%d: canceled run produced %d fingerprints", workers, len(fps))
		}
		for _, r := range failed {
			if !errors.Is(r.Err, context.Canceled) {
				t.Errorf("workers=%d: unexpected error %v", workers, r.Err)
			}
		}
	}
}

func TestWithDecoder_NilKeepsDefault(t *testing.T) {
	s := NewScanner(advanced, WithDecoder(nil))
	if _, ok := s.decoder.(*decode.FileDecoder); !ok {
		t.Errorf("decoder = %T, want *decode.FileDecoder", s.decoder)
	}
}

func TestFingerprints_EarlyStop(t *testing.T) {
	records := writeImages(t, t.TempDir(), 4)

	seen := 0
	for range NewScanner(advanced, WithWorkers(2)).Fingerprints(context.Background(), records) {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("expected one result before stopping, got %d", seen)
	}
}
