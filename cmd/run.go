// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/labai-app/tracking-agent/internal/analyzer"
	"github.com/labai-app/tracking-agent/internal/apiclient"
	"github.com/labai-app/tracking-agent/internal/auth"
	"github.com/labai-app/tracking-agent/internal/bridge"
	"github.com/labai-app/tracking-agent/internal/config"
	"github.com/labai-app/tracking-agent/internal/network"
	"github.com/labai-app/tracking-agent/internal/observability"
	"github.com/labai-app/tracking-agent/internal/relay"
	"github.com/labai-app/tracking-agent/internal/spool"
	"github.com/labai-app/tracking-agent/internal/store"
	"github.com/labai-app/tracking-agent/internal/tracker"
	"github.com/labai-app/tracking-agent/internal/worker"
)

// sessionCacheMaxAge bounds the per-tab session-id cache. Tab sessions are
// ephemeral; anything older is a leftover from a closed tab.
const sessionCacheMaxAge = 24 * time.Hour

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the tracking agent (bridge, worker and relay).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cfg)
		},
	}
}

// dataDir resolves the platform-specific application data directory.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "LabAI"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "LabAI"), nil
	default: // linux and others
		return filepath.Join(home, ".local", "share", "labai"), nil
	}
}

// runAgent wires the components together and serves until the context is
// canceled.
func runAgent(ctx context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	spoolPath := cfg.Spool.Path
	if spoolPath == "" {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create application directory: %w", err)
		}
		spoolPath = filepath.Join(dir, "agent.db")
	}

	st, err := store.Open(ctx, spoolPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.PruneSessions(ctx, sessionCacheMaxAge); err != nil {
		return err
	}

	sp, err := spool.New(ctx, st.DB(), logger)
	if err != nil {
		return err
	}

	authSvc := auth.NewService(st, logger)
	if err := authSvc.Hydrate(ctx); err != nil {
		return err
	}

	api := apiclient.New(cfg.API, logger)
	trk := tracker.New(cfg.Tracker, sp, st, logger)

	analyzerCfg := network.NewDefaultClientConfig()
	analyzerCfg.IgnoreTLSErrors = cfg.API.IgnoreTLSErrors
	analyzerCfg.Logger = logger.Named("analyzer-http")
	pages := analyzer.New(analyzerCfg, logger)

	wrk := worker.New(authSvc, api, trk, logger, worker.WithAnalyzer(pages))

	// Install-time bootstrap: warm the website cache if a login survived the
	// restart. Degraded refresh is fine; the cache is best-effort.
	if _, err := wrk.FetchTrackedWebsites(ctx); err != nil {
		logger.Warn("Initial website refresh degraded", zap.Error(err))
	}

	srv := bridge.NewServer(cfg.Bridge, wrk, logger)
	rel := relay.New(cfg.Relay, cfg.Spool.BatchSize, sp, api, authSvc, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(groupCtx) })
	group.Go(func() error { return rel.Run(groupCtx) })

	return group.Wait()
}
