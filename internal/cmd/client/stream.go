// Package client contains Cobra CLI commands for oddbot.
package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	transports "github.com/corvidaelabs/oddbot/internal/cmd/client/transports"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

// NewStreamCommand constructs the `stream` command group and subcommands.
func NewStreamCommand(baseURL BaseURLFunc) *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Event stream administration"}

	streamCmd.AddCommand(
		newStreamCreateCommand(baseURL),
		newStreamInfoCommand(baseURL),
		newStreamListCommand(baseURL),
		newStreamDeleteCommand(baseURL),
		newStreamClearCommand(baseURL),
	)

	return streamCmd
}

// addStreamNameFlag registers --name, also accepted as --stream-name.
func addStreamNameFlag(cmd *cobra.Command) {
	cmd.Flags().String("name", os.Getenv("EVENT_STREAM_NAME"), "Stream name (default $EVENT_STREAM_NAME)")
	cmd.Flags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "stream-name" {
			name = "name"
		}
		return pflag.NormalizedName(name)
	})
}

// newStreamCreateCommand constructs the `stream create` subcommand.
func newStreamCreateCommand(baseURL BaseURLFunc) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := streamNameFlag(cmd)
			if err != nil {
				return err
			}
			subjects, _ := cmd.Flags().GetString("subjects")
			desc, _ := cmd.Flags().GetString("description")

			info, err := getTransport(baseURL).Create(cmd.Context(), transports.CreateStreamRequest{
				Name:        name,
				Subjects:    splitList(subjects),
				Description: desc,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Event stream created successfully")
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	addStreamNameFlag(createCmd)
	createCmd.Flags().String("subjects", squeak.DefaultPrefix+".>", "Comma-separated subject patterns")
	createCmd.Flags().String("description", "", "Stream description")
	return createCmd
}

// newStreamInfoCommand constructs the `stream info` subcommand.
func newStreamInfoCommand(baseURL BaseURLFunc) *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show stream configuration and counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := streamNameFlag(cmd)
			if err != nil {
				return err
			}
			info, err := getTransport(baseURL).Info(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	addStreamNameFlag(infoCmd)
	return infoCmd
}

// newStreamListCommand constructs the `stream list` subcommand.
func newStreamListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := getTransport(baseURL).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no streams")
				return nil
			}
			for _, info := range list {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tmessages=%d\tfirst=%d\tlast=%d\tsubjects=%v\n",
					info.Config.Name, info.Msgs, info.FirstSeq, info.LastSeq, info.Config.Subjects)
			}
			return nil
		},
	}
}

// newStreamDeleteCommand constructs the `stream delete` subcommand.
func newStreamDeleteCommand(baseURL BaseURLFunc) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stream, its records and consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := streamNameFlag(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			if !force && !confirm(cmd, fmt.Sprintf("Delete stream '%s' and all of its consumers?", name)) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled")
				return nil
			}
			if err := getTransport(baseURL).Delete(cmd.Context(), name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted stream '%s'\n", name)
			return nil
		},
	}
	addStreamNameFlag(deleteCmd)
	deleteCmd.Flags().Bool("force", false, "Skip confirmation")
	return deleteCmd
}

// newStreamClearCommand constructs the `stream clear` subcommand. It drains
// every message through a throwaway consumer, reporting progress per batch.
func newStreamClearCommand(baseURL BaseURLFunc) *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drain all messages in a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := streamNameFlag(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			batch, _ := cmd.Flags().GetInt("batch-size")
			if batch <= 0 {
				return fmt.Errorf("--batch-size must be positive")
			}
			out := cmd.OutOrStdout()

			if !force {
				_, _ = fmt.Fprintf(out, "Warning: This will delete all messages in the stream '%s'\n", name)
				if !confirm(cmd, "Are you sure you want to continue?") {
					_, _ = fmt.Fprintln(out, "Operation cancelled")
					return nil
				}
			}

			total, err := getTransport(baseURL).Clear(cmd.Context(), name, batch, func(p transports.ClearProgress) {
				_, _ = fmt.Fprintf(out, "Cleared %d messages\n", p.Total)
			})
			if err != nil {
				return fmt.Errorf("clear stopped after %d messages: %w", total, err)
			}
			_, _ = fmt.Fprintf(out, "Successfully cleared %d messages from the stream\n", total)
			return nil
		},
	}
	addStreamNameFlag(clearCmd)
	clearCmd.Flags().Int("batch-size", 100, "Messages per batch")
	clearCmd.Flags().Bool("force", false, "Skip confirmation")
	return clearCmd
}

