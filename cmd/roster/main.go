// Package main provides the intervue roster CLI: offline inspection and
// maintenance of the persisted candidate roster.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/intervue/internal/config"
	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/internal/storage"
)

const app = "intervue-roster"

// Version is set at build time via ldflags.
var Version = "dev"

type globalFlags struct {
	driver    string
	namespace string
	debug     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          app,
		Short:        "Inspect and maintain the intervue candidate roster",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if flags.debug {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true})
		},
	}

	root.PersistentFlags().StringVar(&flags.driver, "driver", "", "storage driver override (sqlite, postgres, file, memory)")
	root.PersistentFlags().StringVar(&flags.namespace, "namespace", "", "roster key override")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "verbose/debug output")

	root.AddCommand(
		newStatsCmd(flags),
		newListCmd(flags),
		newExportCmd(flags),
		newResetCmd(flags),
		newRevisionsCmd(flags),
		newRestoreCmd(flags),
		newNamespacesCmd(flags),
		newVersionCmd(),
	)
	return root
}

// session is an opened roster with its backend.
type session struct {
	cfg     *config.Config
	backend *storage.Backend
	store   *roster.Store
}

func openSession(ctx context.Context, flags *globalFlags) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.driver != "" {
		cfg.StorageDriver = flags.driver
	}
	if flags.namespace != "" {
		cfg.Namespace = flags.namespace
	}

	backend, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	store := roster.NewStore(backend, roster.WithNamespace(cfg.Namespace))
	if err := store.Load(ctx); err != nil {
		_ = store.Close(ctx)
		_ = backend.Close()
		return nil, err
	}
	return &session{cfg: cfg, backend: backend, store: store}, nil
}

func (s *session) close(ctx context.Context) error {
	err := s.store.Close(ctx)
	if cerr := s.backend.Close(); err == nil {
		err = cerr
	}
	return err
}

// withSession opens the roster, runs fn and flushes on the way out.
func withSession(cmd *cobra.Command, flags *globalFlags, fn func(*session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(ctx); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
