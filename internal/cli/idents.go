package cli

import (
	"github.com/spf13/cobra"
)

// NewIdentsCommand creates the idents command.
func NewIdentsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "idents",
		Short:         "List idents and attribute schemas",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()
			return f.Success(newIdentsView(s.store.Schema()))
		},
	}
}
