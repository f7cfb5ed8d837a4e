package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the oddbot client.
// It registers the stream and squeak command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "oddbot",
		Short: "oddbot client commands",
	}
	root.AddCommand(NewStreamCommand(baseURL))
	root.AddCommand(NewSqueakCommand(baseURL))
	return root
}
