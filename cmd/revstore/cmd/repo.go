package cmd

import (
	"time"

	"github.com/oneconcern/revstore"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/dlogger"
	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/store"
	"github.com/oneconcern/revstore/pkg/store/bdgr"
	"github.com/oneconcern/revstore/pkg/store/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// appFs is the file system used by the commands, swapped for an in-memory one in tests
var appFs = afero.NewOsFs()

const conflictRetryInterval = 10 * time.Millisecond

// openStore opens the key-value store described by the configuration
func openStore(cfg revstore.Config, l *zap.Logger) (store.Store, error) {
	if cfg.Storage.Backend == revstore.BackendMemory {
		return memory.New(), nil
	}
	return bdgr.Open(
		bdgr.Dir(cfg.Storage.Dir),
		bdgr.SyncWrites(cfg.Storage.Sync),
		bdgr.FileSystem(appFs),
		bdgr.Logger(l),
		bdgr.ConflictRetries(cfg.Locks.Retries, conflictRetryInterval),
	)
}

// repoOptions maps the configuration to the options of a repo
func repoOptions(cfg revstore.Config, kv store.Store, l *zap.Logger, reg prometheus.Registerer) []core.Option {
	opts := []core.Option{
		core.Store(kv),
		core.Logger(l),
		core.LockTimeout(cfg.Locks.Timeout),
		core.ReviewWorkers(cfg.Reviews.Workers),
		core.CacheSize(cfg.Revisions.CacheSize),
		core.DiffConcurrency(cfg.Revisions.DiffConcurrency),
	}
	if reg != nil {
		opts = append(opts, core.Metrics(metrics.New(reg)))
	}
	return opts
}

// session holds the repo opened by a command
type session struct {
	cfg  revstore.Config
	l    *zap.Logger
	kv   store.Store
	repo *core.Repo
}

func (s *session) Close() error {
	return multierr.Append(s.repo.Close(), s.kv.Close())
}

func loggerFor(cmd *cobra.Command, cfg revstore.LoggingConfig) (*zap.Logger, error) {
	l, err := dlogger.GetLogger(cfg.Level,
		dlogger.Encoding(cfg.Encoding),
		dlogger.Fields(zap.String("command", cmd.CommandPath())),
	)
	if err != nil {
		return nil, wrapError("invalid logging configuration", err)
	}
	return l, nil
}

// openSession loads the configuration and opens the repo
func openSession(cmd *cobra.Command, reg prometheus.Registerer) (*session, error) {
	cfg, err := newConfig(viper.GetViper())
	if err != nil {
		return nil, wrapError("invalid configuration", err)
	}
	l, err := loggerFor(cmd, cfg.Logging)
	if err != nil {
		return nil, err
	}
	kv, err := openStore(cfg, l)
	if err != nil {
		return nil, wrapError("open store", err)
	}
	repo, err := core.Open(repoOptions(cfg, kv, l, reg)...)
	if err != nil {
		return nil, wrapError("open repo", multierr.Append(err, kv.Close()))
	}
	return &session{cfg: cfg, l: l, kv: kv, repo: repo}, nil
}

// withRepo runs fn on the repo, closing it afterwards
func withRepo(cmd *cobra.Command, fn func(*core.Repo) error) (err error) {
	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	return fn(s.repo)
}
