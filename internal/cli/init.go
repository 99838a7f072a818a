package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/causetdb/internal/causet"
)

// InitResult describes an opened store.
type InitResult struct {
	Engine string       `json:"engine"`
	Path   string       `json:"path,omitempty"`
	Head   causet.Entid `json:"head"`
	Idents int          `json:"idents"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("✓ %s store at %s: head tx %d, %d idents", r.Engine, r.Path, r.Head, r.Idents)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store if needed and show its head",
		Long: `Open the configured store, writing the bootstrap transaction if the
engine is empty. Running init on an existing store changes nothing.`,
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

			return f.Success(InitResult{
				Engine: s.cfg.Storage.Engine,
				Path:   s.cfg.Storage.Path,
				Head:   s.store.Head(),
				Idents: s.store.Schema().Len(),
			})
		},
	}
}
