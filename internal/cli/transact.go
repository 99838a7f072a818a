package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/tx"
)

// NewTransactCommand creates the transact command.
func NewTransactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transact <file|->",
		Short: "Run one transaction from a JSON file or stdin",
		Long: `Transact a JSON payload: an array of [":db/add" e a v] and
[":db/retract" e a v] terms and entity maps.

Exit codes:
  0 - Committed
  1 - Transaction rejected (the error code names the reason)
  2 - Command error (unreadable input, storage unavailable)

Examples:
  causetdb transact people.json
  echo '[{":db/ident": ":status/active"}]' | causetdb transact -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransact(rootOpts, args[0], cmd)
		},
	}
}

func runTransact(opts *RootOptions, source string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	payload, err := readPayload(cmd, source)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, err.Error(), nil)
	}

	s, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.store.Transact(commandContext(cmd), payload)
	if err != nil {
		return txFailure(f, err)
	}
	return f.Success(newReportView(s.store.Schema(), report))
}

// readPayload reads and parses a JSON payload; "-" reads stdin.
func readPayload(cmd *cobra.Command, source string) (edn.Value, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return edn.Parse(data)
}

// txFailure reports a transactor error. Rejections exit 1; storage
// failures exit 2.
func txFailure(f *OutputFormatter, err error) error {
	code := tx.Code(err)
	exit := ExitFailure
	if code == "internal" || tx.IsOutcomeUnknown(err) {
		exit = ExitCommandError
	}
	return f.Fail(exit, code, err.Error(), nil)
}
