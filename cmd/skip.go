package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediadupes/internal/finder"
)

var skipCmd = &cobra.Command{
	Use:   "skip <image-a> <image-b>",
	Short: "Mark two images as not duplicates",
	Long: `Record that two images are not duplicates. Later scans never report
the pair again, whichever order the images are given in.

Image ids are absolute file paths, as printed by 'mediadupes list'.

Example:
  mediadupes skip ./photos/cat.jpg ./photos/cat-sketch.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runSkip,
}

var unskipAllCmd = &cobra.Command{
	Use:   "unskip-all",
	Short: "Forget every pair marked as not duplicates",
	Args:  cobra.NoArgs,
	RunE:  runUnskipAll,
}

func init() {
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(unskipAllCmd)
}

func runSkip(cmd *cobra.Command, args []string) error {
	a, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	b, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if a == b {
		return fmt.Errorf("cannot skip an image paired with itself")
	}

	cfg, store, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := finder.New(store, finderOptions(cfg))
	if err != nil {
		return err
	}
	if err := f.SkipDuplicatePair(cmd.Context(), a, b); err != nil {
		return fmt.Errorf("failed to skip pair: %w", err)
	}

	fmt.Printf("Skipped: %s\n     and %s\n", a, b)
	return nil
}

func runUnskipAll(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := finder.New(store, finderOptions(cfg))
	if err != nil {
		return err
	}
	if err := f.ClearSkippedPairs(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear skipped pairs: %w", err)
	}

	fmt.Println("All skipped pairs cleared.")
	return nil
}
