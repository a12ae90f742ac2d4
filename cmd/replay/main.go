package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rzbill/replay/internal/bag"
	playrun "github.com/rzbill/replay/internal/cmd/play"
	recordrun "github.com/rzbill/replay/internal/cmd/record"
	cfgpkg "github.com/rzbill/replay/internal/config"
	"github.com/rzbill/replay/internal/rewrite"
	pebblestore "github.com/rzbill/replay/internal/storage/pebble"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay CLI",
		Long:  "Replay records, replays, and rewrites bags of timestamped messages.",
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text|json")

	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newRewriteCmd())
	rootCmd.AddCommand(newBagCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the effective config: file, then env, then the
// shared CLI flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, nil
}

func newPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <bag-dir> [bag-dir...]",
		Short: "Replay one or more bags in timestamp order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("rate") {
				cfg.Play.Rate, _ = f.GetFloat64("rate")
			}
			if f.Changed("queue-size") {
				cfg.Play.QueueSize, _ = f.GetInt("queue-size")
			}
			if f.Changed("loop") {
				cfg.Play.Loop, _ = f.GetBool("loop")
			}
			if f.Changed("start-paused") {
				cfg.Play.StartPaused, _ = f.GetBool("start-paused")
			}
			if f.Changed("delay-ms") {
				cfg.Play.DelayMs, _ = f.GetInt64("delay-ms")
			}
			if f.Changed("topics") {
				cfg.Play.Topics, _ = f.GetStringSlice("topics")
			}
			if f.Changed("filter") {
				cfg.Play.Filter, _ = f.GetString("filter")
			}
			if f.Changed("control") {
				cfg.ControlAddr, _ = f.GetString("control")
			}
			if f.Changed("mqtt-broker") {
				cfg.MQTT.Broker, _ = f.GetString("mqtt-broker")
				cfg.MQTT.Enabled = cfg.MQTT.Broker != ""
			}
			return playrun.Run(cmd.Context(), playrun.Options{BagDirs: args, Config: cfg})
		},
	}
	cmd.Flags().Float64("rate", 1.0, "Playback rate multiplier (must be positive)")
	cmd.Flags().Int("queue-size", 1000, "Read-ahead queue capacity")
	cmd.Flags().Bool("loop", false, "Restart from the beginning when the bags drain")
	cmd.Flags().Bool("start-paused", false, "Start with the clock paused")
	cmd.Flags().Int64("delay-ms", 0, "Delay before playback starts, in ms")
	cmd.Flags().StringSlice("topics", nil, "Only replay these topics")
	cmd.Flags().String("filter", "", "CEL expression over topic, ts_ns, size")
	cmd.Flags().String("control", "", "Control API listen address (e.g. :7070)")
	cmd.Flags().String("mqtt-broker", "", "Publish to this MQTT broker instead of stdout")
	return cmd
}

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <bag-dir>",
		Short: "Capture broker traffic into a bag until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("topics") {
				cfg.Record.Topics, _ = f.GetStringSlice("topics")
			}
			if f.Changed("filter") {
				cfg.Record.Filter, _ = f.GetString("filter")
			}
			if f.Changed("poll-ms") {
				cfg.Record.PollIntervalMs, _ = f.GetInt64("poll-ms")
			}
			if f.Changed("fsync") {
				cfg.Record.FsyncAlways, _ = f.GetBool("fsync")
			}
			if f.Changed("mqtt-broker") {
				cfg.MQTT.Broker, _ = f.GetString("mqtt-broker")
				cfg.MQTT.Enabled = cfg.MQTT.Broker != ""
			}
			return recordrun.Run(cmd.Context(), recordrun.Options{BagDir: args[0], Config: cfg})
		},
	}
	cmd.Flags().StringSlice("topics", nil, "Only record these topics (default: discover all)")
	cmd.Flags().String("filter", "", "CEL expression over topic, ts_ns, size")
	cmd.Flags().Int64("poll-ms", 100, "Topic discovery poll interval, in ms")
	cmd.Flags().Bool("fsync", false, "Fsync every write")
	cmd.Flags().String("mqtt-broker", "", "Capture from this MQTT broker")
	return cmd
}

func newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <bag-dir> [bag-dir...]",
		Short: "Merge and filter bags into new bags at storage speed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDirs, _ := cmd.Flags().GetStringSlice("out")
			topics, _ := cmd.Flags().GetStringSlice("topics")
			filter, _ := cmd.Flags().GetString("filter")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var inputs []*bag.Reader
			defer func() {
				for _, r := range inputs {
					_ = r.Close()
				}
			}()
			for _, dir := range args {
				r, err := bag.OpenReader(dir)
				if err != nil {
					return fmt.Errorf("open %s: %w", dir, err)
				}
				inputs = append(inputs, r)
			}

			var outputs []*bag.Writer
			defer func() {
				for _, w := range outputs {
					_ = w.Close()
				}
			}()
			for _, dir := range outDirs {
				w, err := bag.OpenWriter(dir, pebblestore.FsyncModeNever)
				if err != nil {
					return fmt.Errorf("open %s: %w", dir, err)
				}
				outputs = append(outputs, w)
			}

			if err := rewrite.Rewrite(ctx, inputs, outputs, rewrite.Options{Topics: topics, Filter: filter}); err != nil {
				return err
			}
			for _, w := range outputs {
				fmt.Printf("wrote %d messages\n", w.Meta().MessageCount)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("out", nil, "Output bag directory (repeatable)")
	cmd.Flags().StringSlice("topics", nil, "Only keep these topics")
	cmd.Flags().String("filter", "", "CEL expression over topic, ts_ns, size")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newBagCmd() *cobra.Command {
	bagCmd := &cobra.Command{Use: "bag", Short: "Bag inspection"}

	infoCmd := &cobra.Command{
		Use:   "info <bag-dir>",
		Short: "Print bag metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := bag.OpenReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			meta := r.Meta()
			fmt.Printf("messages: %d\n", meta.MessageCount)
			fmt.Printf("start_ns: %d\n", meta.StartTime)
			fmt.Printf("end_ns:   %d\n", meta.EndTime)
			fmt.Printf("topics:   %d\n", len(r.Topics()))
			return nil
		},
	}

	topicsCmd := &cobra.Command{
		Use:   "topics <bag-dir>",
		Short: "List the topics in a bag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := bag.OpenReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			for _, t := range r.Topics() {
				fmt.Println(t)
			}
			return nil
		},
	}

	bagCmd.AddCommand(infoCmd)
	bagCmd.AddCommand(topicsCmd)
	return bagCmd
}
