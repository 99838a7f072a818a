package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/causetdb/internal/config"
	"github.com/roach88/causetdb/internal/storage"
	"github.com/roach88/causetdb/internal/storage/engines"
	"github.com/roach88/causetdb/internal/tx"
)

// loadConfig reads --config, then applies the flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		var err error
		if cfg, err = config.Load(o.Config); err != nil {
			return nil, err
		}
	}
	if o.Engine != "" {
		cfg.Storage.Engine = o.Engine
	}
	if o.DB != "" {
		cfg.Storage.Path = o.DB
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session is an open engine and the store over it.
type session struct {
	cfg    *config.Config
	eng    storage.Engine
	store  *tx.Store
	logger *slog.Logger
}

// openSession opens the configured engine and store. Failures are
// reported through f and come back as ExitErrors.
func (o *RootOptions) openSession(cmd *cobra.Command, f *OutputFormatter) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	logger := cfg.Log.NewLogger(f.GetErrWriter())

	eng, err := engines.Open(cfg.Storage.Engine, cfg.Storage.Path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStorage, fmt.Sprintf("open %s engine: %v", cfg.Storage.Engine, err), nil)
	}
	f.VerboseLog("Opened %s engine at %s", cfg.Storage.Engine, cfg.Storage.Path)

	store, err := tx.Open(commandContext(cmd), eng,
		tx.WithLogger(logger),
		tx.WithLookupRefPolicy(cfg.LookupRefs()),
	)
	if err != nil {
		_ = eng.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeStorage, fmt.Sprintf("open store: %v", err), nil)
	}
	return &session{cfg: cfg, eng: eng, store: store, logger: logger}, nil
}

func (s *session) Close() error {
	return errors.Join(s.store.Close(), s.eng.Close())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
