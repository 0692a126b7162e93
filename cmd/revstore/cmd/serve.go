// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oneconcern/revstore/pkg/app"
	"github.com/oneconcern/revstore/pkg/httpd"
	"github.com/oneconcern/revstore/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	sessionKey app.Key = iota + 1
	registryKey
	listenerKey
)

const minSweepInterval = time.Minute

func getSession(a app.Application) (*session, error) {
	mod, err := a.Get(sessionKey)
	if err != nil {
		return nil, err
	}
	return mod.(*session), nil
}

// repoModule opens the repo on init, and closes it on stop
func repoModule(cmd *cobra.Command) app.Module {
	return app.MakeModule("repo",
		app.Init(func(a app.Application) error {
			var reg prometheus.Registerer
			if mod, err := a.Get(registryKey); err == nil {
				reg = mod.(*prometheus.Registry)
			}
			s, err := openSession(cmd, reg)
			if err != nil {
				return err
			}
			a.Set(sessionKey, s)
			return nil
		}),
		app.Stop(func(a app.Application) error {
			s, err := getSession(a)
			if err != nil {
				return err
			}
			return s.Close()
		}),
	)
}

// sweepModule periodically removes the completed reviews older than the retention period
func sweepModule() app.Module {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	return app.MakeModule("sweeper",
		app.Start(func(a app.Application) error {
			s, err := getSession(a)
			if err != nil {
				return err
			}
			retention := s.cfg.Reviews.Retention
			if retention == 0 {
				return nil
			}
			interval := retention / 4
			if interval < minSweepInterval {
				interval = minSweepInterval
			}
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						n, err := s.repo.Reviews().Sweep(retention)
						if err != nil {
							a.Logger().Warn("review sweep failed", zap.Error(err))
							continue
						}
						a.Logger().Debug("reviews swept", zap.Int("count", n))
					}
				}
			}()
			return nil
		}),
		app.Stop(func(_ app.Application) error {
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			return nil
		}),
	)
}

// httpModule serves the repo until stopped
func httpModule() app.Module {
	var srv *httpd.Server
	return app.MakeModule("http",
		app.Start(func(a app.Application) error {
			s, err := getSession(a)
			if err != nil {
				return err
			}
			cfg := s.cfg.HTTP
			opts := []web.ServerOption{web.Logger(s.l), web.RateLimit(cfg.RateLimit, cfg.Burst)}
			if mod, err := a.Get(registryKey); err == nil {
				opts = append(opts, web.Gatherer(mod.(*prometheus.Registry)))
			}
			srv = httpd.New(web.InitRouter(web.NewServer(s.repo, opts...)),
				httpd.Listen(cfg.Listen),
				httpd.ListenLimit(cfg.ListenLimit),
				httpd.KeepAlive(cfg.KeepAlive),
				httpd.Timeouts(cfg.ReadTimeout, cfg.WriteTimeout),
				httpd.CleanupTimeout(cfg.ShutdownTimeout),
				httpd.Logger(a.Logger()),
			)
			if err = srv.Serve(); err != nil {
				return err
			}
			a.Set(listenerKey, srv.Addr())
			return nil
		}),
		app.Stop(func(_ app.Application) error {
			if srv == nil {
				return nil
			}
			return srv.Shutdown()
		}),
	)
}

// newServer assembles the modules of the server
func newServer(cmd *cobra.Command) (app.Application, error) {
	cfg, err := newConfig(viper.GetViper())
	if err != nil {
		return nil, wrapError("invalid configuration", err)
	}
	l, err := loggerFor(cmd, cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := app.New(viper.GetViper(), l)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Set(registryKey, reg)
	}
	a.Add(repoModule(cmd), sweepModule(), httpModule())
	return a, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repo over HTTP",
	Long: `Serve the repo over a REST API, with prometheus metrics on /metrics.

Completed reviews are swept once older than the configured retention.
`,
	Example: `% revstore serve --listen :8080`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newServer(cmd)
		if err != nil {
			return err
		}
		if err = a.Init(); err != nil {
			return wrapError("init server", err)
		}
		if err = a.Start(); err != nil {
			return wrapError("start server", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		a.Logger().Info("shutting down")
		return a.Stop()
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "The address to listen on")
	_ = viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}
