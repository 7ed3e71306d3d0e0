package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	ossignal "os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/sleepsense/orchestrator"
	"github.com/maastricht-university/sleepsense/report"
)

var (
	analyzeSampleRate int
	analyzeContext    map[string]string
	analyzeJSON       bool
	analyzeEvents     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.pcm>",
	Short: "Analyze a raw 16-bit mono PCM recording",
	Long: `Analyze a raw little-endian 16-bit mono PCM recording.

External context (humidity, steps, temperature, ...) is fetched from the
context service when one is configured; --context values take precedence.

Example:
  sleepsense analyze night.pcm --sample-rate 16000 --context humidity=72 --context steps=11000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		extCtx, err := parseContext(analyzeContext)
		if err != nil {
			return err
		}

		st, err := openStore(conf)
		if err != nil {
			return err
		}
		opts := []orchestrator.Option{orchestrator.WithLogger(logrus.NewEntry(logrus.StandardLogger()))}
		if st != nil {
			defer st.Close()
			opts = append(opts, orchestrator.WithStore(st))
		}

		p, err := orchestrator.NewPipeline(conf, opts...)
		if err != nil {
			return err
		}

		ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := p.Run(ctx, args[0], orchestrator.RunOptions{
			SampleRate: analyzeSampleRate,
			Context:    extCtx,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if analyzeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprint(out, report.New().Night(report.Night{
			RunID:            res.RunID,
			Source:           res.Source,
			RecordingSeconds: res.RecordingSeconds,
			Summary:          res.Summary,
			Events:           res.Events,
			Insights:         res.Insights,
			MaxEvents:        analyzeEvents,
		}))
		if res.BundlePath != "" {
			fmt.Fprintf(out, "\nreport: %s\n", res.BundlePath)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeSampleRate, "sample-rate", "r", 0, "sample rate of the PCM file (default audio.sample_rate)")
	analyzeCmd.Flags().StringToStringVar(&analyzeContext, "context", nil, "external context metric, key=value (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	analyzeCmd.Flags().IntVar(&analyzeEvents, "events", 10, "number of events to list")
}
