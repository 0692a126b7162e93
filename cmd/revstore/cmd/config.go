package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd prints the configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration resulting from the defaults, the config file, the environment and the flags.

The config file is .revstore.yaml in the working directory, or the file named by REVSTORE_CONFIG.
Every key may be overridden by an environment variable, e.g. REVSTORE_STORAGE_DIR for storage.dir.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := newConfig(viper.GetViper())
		if err != nil {
			return wrapError("invalid configuration", err)
		}
		return print(cmd, cfg)
	},
}

func init() {
	addFormatFlag(configCmd, "yaml", nil)
	rootCmd.AddCommand(configCmd)
}
