package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/constants"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask a running server to reload its gallery",
	Long: `Ask a running rollcall server to load the current gallery artifact.
The server keeps serving the previous gallery if loading fails.

Examples:
  rollcall reload --url http://localhost:5001`,
	RunE: runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)

	reloadCmd.Flags().String("url", "http://localhost:5001", "Base URL of the rollcall server")
}

// reloadResult mirrors the server's reload response.
type reloadResult struct {
	Success    bool     `json:"success"`
	Identities int      `json:"identities"`
	Encodings  int      `json:"encodings"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	Error      string   `json:"error"`
}

func runReload(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ReloadTimeout)
	defer cancel()

	res, err := triggerReload(ctx, mustGetString(cmd, "url"))
	if err != nil {
		return err
	}
	fmt.Printf("Gallery reloaded: %d students, %d encodings\n", res.Identities, res.Encodings)
	printNames("Added", res.Added)
	printNames("Removed", res.Removed)
	return nil
}

// triggerReload posts to the server's reload endpoint.
func triggerReload(ctx context.Context, baseURL string) (*reloadResult, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/v1/reload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var res reloadResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("unexpected reload response (status %d): %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK || !res.Success {
		return nil, fmt.Errorf("server rejected reload (status %d): %s", resp.StatusCode, res.Error)
	}
	return &res, nil
}

func printNames(label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Printf("  %s (%d): %s\n", label, len(names), strings.Join(names, ", "))
}
