package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	transports "github.com/corvidaelabs/oddbot/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// APIURLFromEnv returns ODDBOT_HTTP or the local default.
func APIURLFromEnv() string {
	if v := os.Getenv("ODDBOT_HTTP"); v != "" {
		return v
	}
	return "http://localhost:3000"
}

func getTransport(baseURL BaseURLFunc) *transports.HTTPTransport {
	if baseURL == nil {
		baseURL = APIURLFromEnv
	}
	return transports.NewHTTPTransport(baseURL, nil)
}

// streamNameFlag reads --name, which defaults to EVENT_STREAM_NAME.
func streamNameFlag(cmd *cobra.Command) (string, error) {
	name, _ := cmd.Flags().GetString("name")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("--name is required (or set EVENT_STREAM_NAME)")
	}
	return name, nil
}

// confirm prints prompt and reads a y/yes answer from the command's input.
func confirm(cmd *cobra.Command, prompt string) bool {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
