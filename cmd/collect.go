package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/config"
	"github.com/lbarthel/tubewatch/internal/runner"
	"github.com/lbarthel/tubewatch/internal/status"
)

var collectKeywords []string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection batch over the configured keywords",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		keywords := cfg.Runner.Keywords
		if len(collectKeywords) > 0 {
			keywords = collectKeywords
		}
		if len(keywords) == 0 {
			return fmt.Errorf("no keywords: set runner.keywords or pass --keyword")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		var srv *status.Server
		if cfg.Status.Enabled {
			srv = status.New(a.log, cfg.Status.Port, a.store)
			go func() {
				if err := srv.Start(); err != nil {
					a.log.Error("status server failed", zap.Error(err))
				}
			}()
			defer func() {
				shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shCtx)
			}()
		}

		var epochs runner.EpochResetter
		if a.rotator != nil {
			epochs = a.rotator
		}
		r := runner.New(a.log, a.orch, cfg.Runner.Workers, epochs)
		report := r.Run(ctx, keywords)

		if report.Failed > 0 {
			return fmt.Errorf("%d of %d keywords failed", report.Failed, len(keywords))
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringSliceVar(&collectKeywords, "keyword", nil,
		"keyword to collect (repeatable, overrides runner.keywords)")
	rootCmd.AddCommand(collectCmd)
}
