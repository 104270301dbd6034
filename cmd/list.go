package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mediadupes/internal/match"
	"mediadupes/internal/models"
)

var (
	listJSON    bool
	listGroups  bool
	listHistory bool
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate pairs from the last scan",
	Long: `Display the duplicate pairs found by the last scan, most similar first.
Pairs skipped since the scan are not shown.

With --groups, pairs are merged into connected groups of images.

Example:
  mediadupes list              # Show first 10 pairs (default)
  mediadupes list -n 0         # Show all pairs
  mediadupes list --groups     # Show groups instead of pairs
  mediadupes list --offset 10  # Pairs 11-20
  mediadupes list --history    # Show recent scans`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listGroups, "groups", "g", false, "Show connected groups instead of pairs")
	listCmd.Flags().BoolVar(&listHistory, "history", false, "Show scan history")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of entries to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N entries (for pagination)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	_, store, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if listHistory {
		history, err := store.GetScanHistory(cmd.Context(), listLimit)
		if err != nil {
			return fmt.Errorf("failed to get scan history: %w", err)
		}
		if listJSON {
			return printJSON(history)
		}
		printHistory(history)
		return nil
	}

	pairs, err := store.GetPairs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get pairs: %w", err)
	}

	if len(pairs) == 0 && !listJSON {
		fmt.Println("No duplicate pairs found.")
		fmt.Println("Run 'mediadupes scan <folder>' to scan for duplicates.")
		return nil
	}

	if listGroups {
		groups := match.GroupPairs(pairs)
		start, end := paginate(len(groups), listOffset, listLimit)
		if listJSON {
			return printJSON(groups[start:end])
		}
		fmt.Printf("Found %d duplicate groups (%d pairs)\n\n", len(groups), len(pairs))
		for _, group := range groups[start:end] {
			printGroup(group)
		}
		printPageInfo("groups", start, end, len(groups))
		return nil
	}

	start, end := paginate(len(pairs), listOffset, listLimit)
	if listJSON {
		return printJSON(pairs[start:end])
	}
	fmt.Printf("Found %d duplicate pairs\n\n", len(pairs))
	printPairs(pairs[start:end])
	printPageInfo("pairs", start, end, len(pairs))
	return nil
}

// paginate returns the [start, end) window for offset and limit
func paginate(total, offset, limit int) (int, int) {
	start := offset
	if start > total {
		start = total
	}
	if start < 0 {
		start = 0
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	return start, end
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPageInfo(what string, start, end, total int) {
	if start == end {
		fmt.Printf("No %s in range (offset %d exceeds total %d)\n", what, listOffset, total)
		return
	}
	fmt.Printf("Showing %s %d-%d of %d\n", what, start+1, end, total)
	if end < total {
		limitArg := ""
		if listLimit > 0 {
			limitArg = fmt.Sprintf(" -n %d", listLimit)
		}
		groupsArg := ""
		if listGroups {
			groupsArg = " --groups"
		}
		fmt.Printf("Next page: mediadupes list%s%s --offset %d\n", groupsArg, limitArg, end)
	}
}

func printPairs(pairs []models.DuplicatePair) {
	fmt.Printf("%-7s  %-10s  %-30s  %s\n", "Score", "Method", "Image A", "Image B")
	fmt.Println(strings.Repeat("-", 90))
	for _, p := range pairs {
		fmt.Printf("%6.2f%%  %-10s  %-30s  %s\n",
			p.Similarity, p.Method, shortenPath(p.IDA, 30), shortenPath(p.IDB, 30))
	}
	fmt.Println()
}

func printGroup(group models.DuplicateGroup) {
	fmt.Printf("Group #%d (%d images)\n", group.ID, len(group.IDs))
	fmt.Println(strings.Repeat("-", 60))
	for _, id := range group.IDs {
		fmt.Printf("  %s\n", shortenPath(id, 56))
	}
	best := group.Pairs[0]
	for _, p := range group.Pairs[1:] {
		if p.Similarity > best.Similarity {
			best = p
		}
	}
	fmt.Printf("  closest pair: %.2f%% (%s)\n\n", best.Similarity, best.Method)
}

func printHistory(history []models.ScanRecord) {
	if len(history) == 0 {
		fmt.Println("No scans recorded.")
		return
	}
	fmt.Printf("%-19s  %-8s  %-9s  %-6s  %-6s  %s\n", "Scanned", "Images", "Excluded", "Pairs", "Thr.", "Folder")
	fmt.Println(strings.Repeat("-", 90))
	for _, h := range history {
		fmt.Printf("%-19s  %-8d  %-9d  %-6d  %-6.1f  %s\n",
			h.ScannedAt.Format("2006-01-02 15:04:05"), h.TotalImages, h.Excluded, h.TotalPairs,
			h.Threshold, shortenPath(h.Folder, 40))
	}
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Try to show filename and as much of the path as possible
	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}
