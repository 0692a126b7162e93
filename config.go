package revstore

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

const (
	// BackendBadger persists the repo in a badger database
	BackendBadger = "badger"

	// BackendMemory keeps the repo in memory
	BackendMemory = "memory"
)

// StorageConfig locates the key-value store holding a repo
type StorageConfig struct {
	Backend string `mapstructure:"backend" json:"backend,omitempty" yaml:"backend,omitempty"`
	Dir     string `mapstructure:"dir" json:"dir,omitempty" yaml:"dir,omitempty"`
	Sync    bool   `mapstructure:"sync" json:"sync,omitempty" yaml:"sync,omitempty"`
}

// LoggingConfig sets the log level (debug, info, warn, error or none) and the encoding of entries (json or console)
type LoggingConfig struct {
	Level    string `mapstructure:"level" json:"level,omitempty" yaml:"level,omitempty"`
	Encoding string `mapstructure:"encoding" json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// LocksConfig bounds the wait for branch locks and the retries of conflicting store transactions
type LocksConfig struct {
	Timeout time.Duration `mapstructure:"timeout" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries uint64        `mapstructure:"retries" json:"retries,omitempty" yaml:"retries,omitempty"`
}

// ReviewsConfig tunes the background computation of reviews.
//
// Completed reviews are swept once they are older than the retention period. A zero retention keeps them forever.
type ReviewsConfig struct {
	Workers   int           `mapstructure:"workers" json:"workers,omitempty" yaml:"workers,omitempty"`
	Retention time.Duration `mapstructure:"retention" json:"retention,omitempty" yaml:"retention,omitempty"`
}

// RevisionsConfig tunes revision lookups
type RevisionsConfig struct {
	CacheSize       int `mapstructure:"cacheSize" json:"cacheSize,omitempty" yaml:"cacheSize,omitempty"`
	DiffConcurrency int `mapstructure:"diffConcurrency" json:"diffConcurrency,omitempty" yaml:"diffConcurrency,omitempty"`
}

// HTTPConfig of the REST server
type HTTPConfig struct {
	Listen          string        `mapstructure:"listen" json:"listen,omitempty" yaml:"listen,omitempty"`
	ListenLimit     int           `mapstructure:"listenLimit" json:"listenLimit,omitempty" yaml:"listenLimit,omitempty"`
	KeepAlive       time.Duration `mapstructure:"keepAlive" json:"keepAlive,omitempty" yaml:"keepAlive,omitempty"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout" json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout" json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
	RateLimit       float64       `mapstructure:"rateLimit" json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	Burst           int           `mapstructure:"burst" json:"burst,omitempty" yaml:"burst,omitempty"`
}

// MetricsConfig enables prometheus metrics, served on /metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Config of a revstore server or command
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" json:"storage,omitempty" yaml:"storage,omitempty"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging,omitempty" yaml:"logging,omitempty"`
	Locks     LocksConfig     `mapstructure:"locks" json:"locks,omitempty" yaml:"locks,omitempty"`
	Reviews   ReviewsConfig   `mapstructure:"reviews" json:"reviews,omitempty" yaml:"reviews,omitempty"`
	Revisions RevisionsConfig `mapstructure:"revisions" json:"revisions,omitempty" yaml:"revisions,omitempty"`
	HTTP      HTTPConfig      `mapstructure:"http" json:"http,omitempty" yaml:"http,omitempty"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// DefaultConfig stores the repo in .revstore/data and serves it on localhost:8080
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend: BackendBadger,
			Dir:     ".revstore/data",
		},
		Logging: LoggingConfig{Level: "info", Encoding: "json"},
		Locks: LocksConfig{
			Timeout: 30 * time.Second,
			Retries: 10,
		},
		Reviews: ReviewsConfig{
			Retention: 24 * time.Hour,
		},
		Revisions: RevisionsConfig{
			CacheSize: 4096,
		},
		HTTP: HTTPConfig{
			Listen:          "localhost:8080",
			KeepAlive:       3 * time.Minute,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate the config, reporting all errors at once
func (c Config) Validate() error {
	var err error
	switch c.Storage.Backend {
	case BackendBadger:
		if c.Storage.Dir == "" {
			err = multierr.Append(err, fmt.Errorf("storage.dir is required by the %s backend", BackendBadger))
		}
	case BackendMemory:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown logging.encoding %q", c.Logging.Encoding))
	}
	if c.Locks.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("locks.timeout must not be negative"))
	}
	if c.Reviews.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("reviews.workers must not be negative"))
	}
	if c.Reviews.Retention < 0 {
		err = multierr.Append(err, fmt.Errorf("reviews.retention must not be negative"))
	}
	if c.HTTP.ListenLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("http.listenLimit must not be negative"))
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.Burst < 0 {
		err = multierr.Append(err, fmt.Errorf("http.rateLimit and http.burst must not be negative"))
	}
	if c.Revisions.CacheSize < 0 {
		err = multierr.Append(err, fmt.Errorf("revisions.cacheSize must not be negative"))
	}
	return err
}
