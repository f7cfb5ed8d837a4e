package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	transports "github.com/corvidaelabs/oddbot/internal/cmd/client/transports"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

// NewSqueakCommand constructs the `squeak` command group.
func NewSqueakCommand(baseURL BaseURLFunc) *cobra.Command {
	squeakCmd := &cobra.Command{Use: "squeak", Short: "Publish and watch squeaks"}
	squeakCmd.AddCommand(
		newSqueakPublishCommand(baseURL),
		newSqueakListCommand(baseURL),
		newSqueakTailCommand(baseURL),
	)
	return squeakCmd
}

func newSqueakPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a squeak",
		RunE: func(cmd *cobra.Command, _ []string) error {
			author, _ := cmd.Flags().GetString("author")
			content, _ := cmd.Flags().GetString("content")
			sq, err := getTransport(baseURL).Publish(cmd.Context(), author, content)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "id: %s\n", sq.ID)
			return nil
		},
	}
	publishCmd.Flags().String("author", "", "Author name")
	publishCmd.Flags().String("content", "", "Squeak text")
	return publishCmd
}

func newSqueakListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest squeaks, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			list, err := getTransport(baseURL).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, sq := range list {
				_ = enc.Encode(sq)
			}
			return nil
		},
	}
	listCmd.Flags().Int("limit", 20, "Maximum squeaks to show")
	return listCmd
}

// newSqueakTailCommand prints squeaks pushed over the WebSocket gateway as
// JSON lines.
func newSqueakTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Watch live squeaks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			replay, _ := cmd.Flags().GetBool("replay")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			enc := json.NewEncoder(cmd.OutOrStdout())
			return getTransport(baseURL).Tail(cmd.Context(), transports.TailRequest{
				Replay: replay,
				Filter: filter,
				Limit:  limit,
			}, func(sq squeak.Squeak) error {
				return enc.Encode(sq)
			})
		},
	}
	tailCmd.Flags().Bool("replay", true, "Replay recent history before live squeaks")
	tailCmd.Flags().String("filter", "", `CEL filter, e.g. author == "skeever"`)
	tailCmd.Flags().Int("limit", 0, "Stop after N squeaks (0 = infinite)")
	return tailCmd
}
