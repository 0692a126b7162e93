// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/oneconcern/revstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "revstore",
	Short: "revstore keeps the history of terminology components on branches",
	Long: `revstore keeps the history of terminology components on a tree of branches.

Changes are committed on branches, then merged or rebased between branches. Changes that can't be
reconciled automatically are reported as conflicts, and nothing is written.

Reviews list the changes brought by a branch, at the component and at the concept level.

The repo is stored in a local badger database, and may be served over HTTP with "revstore serve".
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	addRootFlags(rootCmd)
}

// setDefaults registers the default configuration with viper, so every key is known to AutomaticEnv
func setDefaults(v *viper.Viper) {
	d := revstore.DefaultConfig()
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.sync", d.Storage.Sync)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("locks.timeout", d.Locks.Timeout)
	v.SetDefault("locks.retries", d.Locks.Retries)
	v.SetDefault("reviews.workers", d.Reviews.Workers)
	v.SetDefault("reviews.retention", d.Reviews.Retention)
	v.SetDefault("revisions.cacheSize", d.Revisions.CacheSize)
	v.SetDefault("revisions.diffConcurrency", d.Revisions.DiffConcurrency)
	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("http.listenLimit", d.HTTP.ListenLimit)
	v.SetDefault("http.keepAlive", d.HTTP.KeepAlive)
	v.SetDefault("http.readTimeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.writeTimeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdownTimeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.rateLimit", d.HTTP.RateLimit)
	v.SetDefault("http.burst", d.HTTP.Burst)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults(viper.GetViper())
	if os.Getenv("REVSTORE_CONFIG") != "" {
		// Use config file from the env.
		viper.SetConfigFile(os.Getenv("REVSTORE_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".revstore")
	}

	viper.SetEnvPrefix("revstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// newConfig decodes the configuration gathered by viper
func newConfig(v *viper.Viper) (revstore.Config, error) {
	var c revstore.Config
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}
