package cmd

import (
	"context"

	"github.com/Iron-Ham/cibox/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cibox",
	Short: "Disposable container sandbox for CI runs",
	Long: `cibox creates a single Linux container from a distribution triple,
boots it, provisions it, clones and sets up the backend inside it, runs the
test suite and tears it down again.

Every pipeline command boots the container first if needed and runs the
pipelines it depends on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx. Cancelling ctx interrupts
// boot waits and stops pipelines between steps.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// flagKeys maps persistent flags to the configuration keys they override.
var flagKeys = map[string]string{
	"config":         "config",
	"container-name": "container.name",
	"container-data": "container.data",
	"runtime":        "runtime.driver",
	"branch":         "backend.branch",
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/cibox/config.yaml)")
	flags.String("container-name", "", "container name (default \"test\")")
	flags.String("container-data", "", "distribution,release,architecture used by create (default \"ubuntu,xenial,amd64\")")
	flags.String("runtime", "", "container runtime: lxc or docker (default \"lxc\")")
	flags.String("branch", "", "backend branch cloned by clone_backend (default \"develop\")")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	// Bound here rather than in init so a viper reset keeps the flags wired
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	})

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
