// Package commands implements the sleepsense command line.
package commands

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maastricht-university/sleepsense/config"
	"github.com/maastricht-university/sleepsense/store"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sleepsense",
	Short: "Detect and explain night-time sounds in a recording",
	Long: `sleepsense segments an overnight recording into acoustic events
(snoring, cough or speech, other sounds, silence), classifies them and
derives a ranked list of insights for the night.

Configuration is layered: built-in defaults, then a YAML file
(--config, config/$CONFIG_ENV/config.yaml or sleepsense.yaml), then
SLEEPSENSE_* environment variables, then flags.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the layered configuration and applies it to logging.
func loadConfig(cmd *cobra.Command) (*config.Root, error) {
	flags := cmd.Root().PersistentFlags()
	conf, err := config.Load(cfgFile, func(v *viper.Viper) error {
		if err := v.BindPFlag("pipeline.log_level", flags.Lookup("log-level")); err != nil {
			return err
		}
		return v.BindPFlag("pipeline.log_format", flags.Lookup("log-format"))
	})
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cmd, conf.Pipeline); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"config": conf.Source, "version": conf.Pipeline.Version}).Debug("configuration loaded")
	return conf, nil
}

func setupLogging(cmd *cobra.Command, p config.Pipeline) error {
	lvl, err := logrus.ParseLevel(p.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(cmd.ErrOrStderr())
	if p.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func openStore(conf *config.Root) (*store.Store, error) {
	if conf.Paths.Store == "" {
		return nil, nil
	}
	return store.New(conf.Paths.Store)
}

// parseContext converts --context key=value pairs to numbers.
func parseContext(kv map[string]string) (map[string]float64, error) {
	if len(kv) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(kv))
	for k, v := range kv {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("--context %s=%s: value must be a number", k, v)
		}
		out[k] = f
	}
	return out, nil
}
