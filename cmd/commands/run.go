/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/numaproj/numawindow"
	"github.com/numaproj/numawindow/pkg/checkpoint"
	"github.com/numaproj/numawindow/pkg/metrics"
	"github.com/numaproj/numawindow/pkg/server"
	"github.com/numaproj/numawindow/pkg/shared/logging"
)

func NewRunCommand() *cobra.Command {
	var configFile string

	command := &cobra.Command{
		Use:   "run",
		Short: "Run an operator with windowed input ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("run")
			version := numawindow.GetVersion()
			log.Infow("Starting numawindow", "version", version)
			metrics.BuildInfo.WithLabelValues(version.Version, version.Platform).Set(1)
			v := newViper(configFile)
			cfg, err := LoadConfig(v)
			if err != nil {
				return err
			}
			if err := logging.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			watchLogLevel(v, log)
			ctx := logging.WithLogger(signals.SetupSignalHandler(), log.With("operator", cfg.Name))
			return run(ctx, cfg)
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "numawindow.yaml", "Path to the operator configuration file")
	return command
}

// watchLogLevel applies log level changes of the configuration file while running.
func watchLogLevel(v *viper.Viper, log *zap.SugaredLogger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		lvl := v.GetString("logLevel")
		if err := logging.SetLevel(lvl); err != nil {
			log.Errorw("Invalid log level in the reloaded config", zap.String("logLevel", lvl), zap.Error(err))
			return
		}
		log.Infow("Log level reloaded", zap.String("logLevel", lvl))
	})
	v.WatchConfig()
}

func run(ctx context.Context, cfg *Config) (err error) {
	log := logging.FromContext(ctx)
	op, bindings, err := buildOperator(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = multierr.Append(err, op.Close(closeCtx))
	}()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	periodic, err := checkpoint.NewPeriodic(ctx, cfg.Checkpoint.Schedule, op, store, cfg.Checkpoint.Key)
	if err != nil {
		return err
	}
	restored, err := periodic.Restore(ctx)
	if err != nil {
		return err
	}
	if restored {
		log.Infow("Restored from checkpoint", zap.String("store", store.Name()), zap.String("key", cfg.Checkpoint.Key))
		if err := op.Resume(ctx); err != nil {
			return err
		}
	}
	periodic.Start()
	defer periodic.Stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return op.Run(gCtx, bindings)
	})
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case bgErr := <-op.Errors():
				log.Errorw("Background task failed", zap.Error(bgErr))
			}
		}
	})
	if cfg.Server.Enabled {
		healthCheckers := []metrics.HealthChecker{op}
		if hc, ok := store.(metrics.HealthChecker); ok {
			healthCheckers = append(healthCheckers, hc)
		}
		g.Go(func() error {
			opts := server.ServerOptions{Port: cfg.Server.Port, HealthCheckers: healthCheckers}
			return server.NewServer(op, opts).Start(gCtx)
		})
	}
	// the sources returning does not stop the server, only a signal does
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return periodic.CheckpointNow(context.Background())
}
