package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/tx"
)

// NewEntityCommand creates the entity command.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entity <entid|:ident|[attr value]>",
		Short: "Show the current datoms of one entity",
		Long: `Show every datom currently asserted about an entity.

The entity is named by its entid, its ident keyword or a lookup ref on a
unique attribute, written as JSON.

Examples:
  causetdb entity 65536
  causetdb entity :person/name
  causetdb entity '[":person/email", "ada@example.com"]'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ref, err := parseEntityRef(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, err.Error(), nil)
			}

			s, err := rootOpts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := commandContext(cmd)
			e, err := s.store.Resolve(ctx, ref)
			if err != nil {
				if tx.IsResolutionError(err) {
					return f.Fail(ExitFailure, ErrCodeNotFound, err.Error(), map[string]string{"code": tx.Code(err)})
				}
				return txFailure(f, err)
			}
			datoms, err := s.store.Entity(ctx, e)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
			}
			return f.Success(EntityView{Entid: e, Datoms: datomViews(s.store.Schema(), datoms)})
		},
	}
}

// parseEntityRef reads an entid, a keyword (the leading colon is
// optional) or a JSON lookup ref.
func parseEntityRef(arg string) (edn.Value, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return nil, fmt.Errorf("empty entity reference")
	case strings.HasPrefix(arg, "["):
		return edn.Parse([]byte(arg))
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if n < 0 {
			return nil, fmt.Errorf("entid %d is negative", n)
		}
		return edn.Int(n), nil
	}
	if !strings.HasPrefix(arg, ":") {
		arg = ":" + arg
	}
	if _, err := causet.ParseKeyword(arg); err != nil {
		return nil, err
	}
	return edn.String(arg), nil
}
