package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediadupes/internal/server"
)

var (
	servePort    int
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve duplicate pairs and live scans over HTTP",
	Long: `Start a local HTTP server exposing stored results and live scans.

Routes:
  GET    /api/pairs           Stored pairs, most similar first
  GET    /api/groups          Pairs merged into connected groups
  GET    /api/history         Recent scans
  POST   /api/skip            Mark {"id_a","id_b"} as not duplicates
  DELETE /api/skip            Forget every skipped pair
  GET    /api/image?path=     Image file of a stored pair
  GET    /ws/scan?folder=     WebSocket streaming a scan as it runs

The server shuts down after the idle timeout when no requests arrive and
no scan is streaming.

Example:
  mediadupes serve                  # Start on default port 8080
  mediadupes serve -p 3000          # Use custom port
  mediadupes serve --timeout 10m    # 10 minute idle timeout`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 5*time.Minute, "Idle timeout (0 to disable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStorage(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.New(store, finderOptions(cfg), servePort, serveTimeout)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("Starting server at http://localhost:%d\n", servePort)
	fmt.Printf("Idle timeout: %v (resets on activity)\n", serveTimeout)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	return srv.Start()
}
