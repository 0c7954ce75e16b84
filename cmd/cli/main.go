package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/streamsave-go/internal/client"
	"github.com/yourusername/streamsave-go/pkg/logger"
)

var (
	serverURL    string
	noAutoStart  bool
	verbose      bool
	pollInterval time.Duration
	saveDir      string

	rootCmd = &cobra.Command{
		Use:   "streamsave",
		Short: "StreamSave CLI - save media from a URL through the download server",
		Long:  `A command-line client for the StreamSave download server. Submit a media page URL and get a saved file back.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log session events while running")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// newController wires a controller rendering to the terminal, optionally
// duplicated into a structured log
func newController() *client.Controller {
	backend := client.NewBackend(serverURL)

	var sink client.RenderSink = newConsoleSink()
	opts := client.ControllerOptions{PollInterval: pollInterval}
	if verbose {
		log := logger.NewDefault()
		sink = client.NewMultiSink(sink, client.NewLogSink(log))
		opts.Logger = log
	}

	return client.NewController(backend, sink, opts)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download through the server and poll progress until done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		ctrl := newController()
		if err := ctrl.Fetch(cmd.Context(), args[0]); err != nil {
			os.Exit(1)
		}
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [url]",
	Short: "Prepare on the server, then stream the file straight to disk",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		dir := saveDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			dir = filepath.Join(home, "Downloads")
		}

		ctrl := newController()
		if err := ctrl.Save(cmd.Context(), args[0], client.NewFileSaver(dir)); err != nil {
			os.Exit(1)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		phase, _ := cmd.Flags().GetString("phase")

		url := serverURL + "/api/v1/sessions"
		if phase != "" {
			url += "?phase=" + phase
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var sessions []map[string]interface{}
		json.Unmarshal(body, &sessions)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSTRATEGY\tPHASE\tPROGRESS\tCREATED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v%%\t%s\n",
				truncate(str(s["id"]), 8),
				truncate(str(s["source_url"]), 40),
				s["strategy"],
				s["phase"],
				s["progress"],
				s["created_at"])
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/sessions/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Session Statistics:")
		fmt.Printf("  Total:       %v\n", stats["total"])
		fmt.Printf("  Preparing:   %v\n", stats["preparing"])
		fmt.Printf("  Downloading: %v\n", stats["downloading"])
		fmt.Printf("  Streaming:   %v\n", stats["streaming"])
		fmt.Printf("  Complete:    %v\n", stats["complete"])
		fmt.Printf("  Error:       %v\n", stats["error"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get session details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Get(serverURL + "/api/v1/sessions/" + id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var session map[string]interface{}
		json.Unmarshal(body, &session)

		fmt.Printf("Session Details:\n")
		fmt.Printf("  ID:       %s\n", session["id"])
		fmt.Printf("  URL:      %s\n", session["source_url"])
		fmt.Printf("  Strategy: %s\n", session["strategy"])
		fmt.Printf("  Phase:    %s\n", session["phase"])
		fmt.Printf("  Progress: %v%%\n", session["progress"])
		fmt.Printf("  Status:   %s\n", session["status_text"])
		fmt.Printf("  Created:  %s\n", session["created_at"])
		if session["file_path"] != nil {
			fmt.Printf("  File:     %s\n", session["file_path"])
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel an active session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Post(serverURL+"/api/v1/sessions/"+id+"/cancel", "application/json", bytes.NewReader(nil))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Session cancelled successfully")
	},
}

func init() {
	fetchCmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "Progress polling interval")
	saveCmd.Flags().StringVarP(&saveDir, "dir", "d", "", "Directory to save into (default ~/Downloads)")
	listCmd.Flags().StringP("phase", "p", "", "Filter by phase")
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
