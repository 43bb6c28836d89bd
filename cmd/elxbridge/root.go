package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joshp123/electrolux-bridge/internal/config"
	"github.com/joshp123/electrolux-bridge/internal/logging"
)

var _rootOpts struct {
	configFile string
	debug      bool
}

// v is shared by every command so flags bound in init are visible to Load.
var v = config.New()

var rootCmd = &cobra.Command{
	Use:           "elxbridge",
	Short:         "Bridge Electrolux cloud appliances to MQTT, HTTP and gRPC",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _rootOpts.debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		explicit := cmd.Flags().Changed("config")
		if err := config.ReadFile(v, _rootOpts.configFile, explicit); err != nil {
			return err
		}
		return logging.Configure(v)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&_rootOpts.configFile, "config", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().BoolVar(&_rootOpts.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().String("settings", config.DefaultSettingsPath, "settings record file")

	errPanic(v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format")))
	errPanic(v.BindPFlag("settings.path", rootCmd.PersistentFlags().Lookup("settings")))
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Logger(nil).WithError(err).Error("elxbridge failed")
		os.Exit(1)
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// loadConfig checks keys and builds the validated configuration.
func loadConfig(required ...string) (config.Config, error) {
	if err := config.CheckRequired(v, required...); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}
