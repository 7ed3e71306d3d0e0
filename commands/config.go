package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, file, environment and flags
have been applied. The output is valid input for --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := conf.YAML()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if conf.Source != "" {
			fmt.Fprintf(out, "# source: %s\n", conf.Source)
		}
		_, err = out.Write(b)
		return err
	},
}
