package core

import (
	"runtime"
	"time"

	"github.com/oneconcern/revstore/pkg/metrics"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/oneconcern/revstore/pkg/store"
	"go.uber.org/zap"
)

// Option sets options for a Repo
type Option func(*Settings)

// Settings defines various settings for a Repo
type Settings struct {
	kv              store.Store
	schema          *model.Schema
	l               *zap.Logger
	m               *metrics.Metrics
	lockTimeout     time.Duration
	reviewWorkers   int
	cacheSize       int
	diffConcurrency int
}

var (
	defaultReviewWorkers   = runtime.NumCPU()
	defaultDiffConcurrency = 2 * runtime.NumCPU()
)

const defaultCacheSize = 4096

// Store sets the key-value store holding the repo. It defaults to an in-memory store, closed with the repo.
//
// A store passed as an option is not closed by the repo.
func Store(kv store.Store) Option {
	return func(s *Settings) {
		s.kv = kv
	}
}

// Schema sets the component types known to the repo. It defaults to the terminology schema.
func Schema(schema *model.Schema) Option {
	return func(s *Settings) {
		if schema != nil {
			s.schema = schema
		}
	}
}

// Logger for the repo and all its engines
func Logger(l *zap.Logger) Option {
	return func(s *Settings) {
		if l != nil {
			s.l = l
		}
	}
}

// Metrics collected by the repo. No metrics are collected by default.
func Metrics(m *metrics.Metrics) Option {
	return func(s *Settings) {
		s.m = m
	}
}

// LockTimeout bounds the wait for the write lock of a branch
func LockTimeout(d time.Duration) Option {
	return func(s *Settings) {
		s.lockTimeout = d
	}
}

// ReviewWorkers sets the number of reviews computed concurrently. It defaults to #cpus.
func ReviewWorkers(n int) Option {
	return func(s *Settings) {
		if n == 0 {
			s.reviewWorkers = defaultReviewWorkers
			return
		}
		s.reviewWorkers = n
	}
}

// CacheSize sets the number of segment lists kept by the revision cache. Zero disables the cache.
func CacheSize(n int) Option {
	return func(s *Settings) {
		s.cacheSize = n
	}
}

// DiffConcurrency sets the max level of concurrency to fetch revisions in a diff. It defaults to 2 x #cpus.
func DiffConcurrency(n int) Option {
	return func(s *Settings) {
		if n == 0 {
			s.diffConcurrency = defaultDiffConcurrency
			return
		}
		s.diffConcurrency = n
	}
}

func defaultSettings() Settings {
	return Settings{
		schema:          model.TerminologySchema(),
		l:               zap.NewNop(),
		reviewWorkers:   defaultReviewWorkers,
		cacheSize:       defaultCacheSize,
		diffConcurrency: defaultDiffConcurrency,
	}
}
