package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lbarthel/tubewatch/internal/config"
	"github.com/lbarthel/tubewatch/internal/uploader"
)

var drainOnce bool

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Drain the upload queue into the configured sink",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		dest, err := buildSink(ctx, a.log, cfg)
		if err != nil {
			return err
		}
		defer dest.Close()

		u := uploader.New(a.log, a.store, dest, uploader.Config{
			BatchSize:  cfg.Uploader.BatchSize,
			RatePerSec: cfg.Uploader.RatePerSec,
			IdleSleep:  time.Duration(cfg.Uploader.IdleSleepSec) * time.Second,
		})

		if drainOnce {
			_, err := u.DrainOnce(ctx)
			return err
		}
		return u.Run(ctx)
	},
}

func init() {
	drainCmd.Flags().BoolVar(&drainOnce, "once", false, "drain one batch and exit")
	rootCmd.AddCommand(drainCmd)
}
