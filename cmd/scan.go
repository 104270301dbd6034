package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"mediadupes/internal/finder"
	"mediadupes/internal/models"
	"mediadupes/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>...",
	Short: "Scan folders for duplicate images",
	Long: `Scan one or more folders recursively for images and detect duplicates.
Images in different folders are compared with each other.

The scan will:
1. Find all supported images (jpg, png, gif, webp, bmp, tiff)
2. Compute a perceptual fingerprint for each image
3. Compare every pair and keep those at or above the threshold
4. Store the pairs in the database for later use

Images that cannot be decoded are skipped and listed at the end.

Example:
  mediadupes scan ./photos
  mediadupes scan ./photos ./backup
  mediadupes scan /path/to/images --threshold 92 --workers 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	folders := make([]string, len(args))
	for i, arg := range args {
		absFolder, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		info, err := os.Stat(absFolder)
		if err != nil {
			return fmt.Errorf("folder not found: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("not a directory: %s", absFolder)
		}
		folders[i] = absFolder
	}

	cfg, store, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := scan.CollectFolders(folders)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("Scanning: %s\n", strings.Join(folders, ", "))
	fmt.Printf("Images:   %d\n", len(records))
	fmt.Printf("Variant:  %s (rotations: %t)\n", cfg.Variant, cfg.IncludeRotations)
	fmt.Printf("Workers:  %d\n\n", cfg.Workers)

	if len(records) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	opts := finderOptions(cfg)
	bars := newStageBars()
	opts.OnProgress = bars.update

	f, err := finder.New(store, opts)
	if err != nil {
		return err
	}

	result, err := f.FindDuplicates(cmd.Context(), records)
	bars.finish()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := store.SavePairs(cmd.Context(), result.Pairs); err != nil {
		return fmt.Errorf("failed to save pairs: %w", err)
	}
	store.RecordScan(cmd.Context(), models.ScanRecord{
		Folder:      strings.Join(folders, string(filepath.ListSeparator)),
		TotalImages: result.TotalImages,
		Excluded:    len(result.Excluded),
		TotalPairs:  len(result.Pairs),
		Variant:     string(f.Config().Variant),
		Threshold:   f.Threshold(),
	})

	// Print summary
	fmt.Println()
	fmt.Println("=== Scan Complete ===")
	fmt.Printf("Total images:    %d\n", result.TotalImages)
	fmt.Printf("Excluded:        %d\n", len(result.Excluded))
	fmt.Printf("Threshold:       %.1f\n", f.Threshold())
	fmt.Printf("Duplicate pairs: %d\n", len(result.Pairs))

	if len(result.Excluded) > 0 {
		fmt.Println()
		fmt.Println("Could not read:")
		for _, ex := range result.Excluded {
			fmt.Printf("  %s\n      %s\n", shortenPath(ex.Record.FilePath, 60), ex.Reason)
		}
	}

	if len(result.Pairs) > 0 {
		fmt.Println()
		fmt.Println("Run 'mediadupes list' to see duplicate pairs")
		fmt.Println("Run 'mediadupes skip <a> <b>' to dismiss a false match")
	}

	return nil
}

// stageBars renders one progress bar per detection stage
type stageBars struct {
	stage models.Stage
	bar   *progressbar.ProgressBar
}

func newStageBars() *stageBars {
	return &stageBars{}
}

func (b *stageBars) update(p models.Progress) {
	if p.Stage != b.stage || b.bar == nil {
		b.finish()
		b.stage = p.Stage
		b.bar = progressbar.Default(int64(p.Total), stageLabel(p.Stage))
	}
	b.bar.Set(p.Done)
}

func (b *stageBars) finish() {
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
	}
}

func stageLabel(s models.Stage) string {
	if s == models.StageFingerprint {
		return "Fingerprinting"
	}
	return "Comparing"
}
