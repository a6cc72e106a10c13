// Command zygotectl is a thin inspection CLI that talks to a running
// zygoted's control HTTP surface, using the same cobra-subcommand
// layout as zygoted itself.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var daemonAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "zygotectl",
		Short: "Inspect a running zygoted invoker",
	}
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:8080", "zygoted control HTTP address")

	rootCmd.AddCommand(statsCmd(), healthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print pool occupancy (free/busy/prewarmed/zygote/buffer depth)",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch(daemonAddr + "/stats")
			if err != nil {
				return err
			}
			var stats map[string]any
			if err := json.Unmarshal(body, &stats); err != nil {
				return fmt.Errorf("parse stats response: %w", err)
			}
			fmt.Printf("Free:             %v\n", stats["free"])
			fmt.Printf("Busy:             %v\n", stats["busy"])
			fmt.Printf("Prewarmed:        %v\n", stats["prewarmed"])
			fmt.Printf("Prewarm starting: %v\n", stats["prewarm_starting"])
			fmt.Printf("Zygote:           %v\n", stats["zygote"])
			fmt.Printf("Shared:           %v\n", stats["shared"])
			fmt.Printf("Buffer depth:     %v\n", stats["buffer_depth"])
			fmt.Printf("Preload actions:  %v\n", stats["preload_actions"])
			fmt.Printf("Cold starts:      %v\n", stats["cold_start_count"])
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch(daemonAddr + "/healthz")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func fetch(url string) ([]byte, error) {
	resp, err := httpClient().Get(url)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
