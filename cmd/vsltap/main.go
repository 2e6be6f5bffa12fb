package main

import (
	"bufio"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vsltap/internal/adapters/decoders/vsl"
	"vsltap/internal/adapters/storage/memory"
	cfgpkg "vsltap/internal/infrastructure/config"
	obs "vsltap/internal/infrastructure/observability"
	"vsltap/internal/infrastructure/output"
	"vsltap/internal/usecase"
)

func main() {
	cfg := cfgpkg.FromEnv()

	var (
		verbose   bool
		quiet     bool
		varnishV3 bool
	)

	cmd := &cobra.Command{
		Use:   "vsltap [file]",
		Short: "Correlate a binary Varnish VSL log stream into JSON access records",
		Long: "vsltap reads the binary VSL log stream of a Varnish cache from a file or\n" +
			"stdin, correlates the interleaved transaction records into session trees\n" +
			"and emits one flat JSON record per client request.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				cfg.LogLevel = "debug"
			}
			if quiet {
				cfg.LogLevel = "quiet"
			}
			logger := obs.NewLogger(cfg.LogLevel)

			if varnishV3 {
				logger.Error().Msg("Varnish v3 binary logs are not supported; upgrade the producer to v4 or later")
				os.Exit(2)
			}

			var src io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			format, err := output.ParseFormat(cfg.Format)
			if err != nil {
				return err
			}
			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()
			var sink usecase.OutputSink
			switch format {
			case output.FormatJSONPretty:
				sink = output.NewJSONSink(out, true)
			case output.FormatNCSA:
				sink = output.NewNCSASink(out)
			default:
				sink = output.NewJSONSink(out, false)
			}

			metrics := obs.NewMetrics()

			logger.Info().
				Str("version", obs.Version).
				Str("format", string(format)).
				Int("buffer_size", cfg.StreamBufferSize).
				Int("max_record_slots", cfg.MaxRecordSlots).
				Msg("starting vsltap")

			engine := usecase.NewEngine(
				vsl.NewReaderSize(src, cfg.StreamBufferSize),
				vsl.Parse,
				sink,
				usecase.Options{
					Store: memory.Config{
						MaxSlots:     cfg.MaxRecordSlots,
						EvictFactor:  cfg.EvictFactor,
						MaxEpochDiff: cfg.MaxEpochDiff,
					},
					Flatten: usecase.FlattenOptions{
						KeepRawHeaders:       cfg.KeepRawHeaders,
						KeepRawLog:           cfg.KeepRawLog,
						NoHeaderIndexing:     cfg.NoHeaderIndexing,
						NoLogProcessing:      cfg.NoLogProcessing,
						MaskSensitiveHeaders: cfg.MaskSensitiveHeaders,
					},
				},
				*logger,
			)

			runErr := engine.Run()

			stats := engine.Stats()
			metrics.Observe(usecase.Stats{}, stats, engine.InStore())
			logger.Info().
				Uint64("frames", stats.FramesDecoded).
				Uint64("opened", stats.RecordsOpened).
				Uint64("emitted", stats.RecordsEmitted).
				Uint64("evicted", stats.RecordsEvicted).
				Uint64("degraded", stats.ParseDegraded).
				Uint64("warnings", stats.StateWarnings).
				Msg("done")

			return runErr
		},
	}

	cmd.Flags().StringVar(&cfg.Format, "format", cfg.Format, "output format: json, json-pretty or ncsa-json")
	cmd.Flags().IntVar(&cfg.StreamBufferSize, "buffer-size", cfg.StreamBufferSize, "stream buffer size in bytes; must exceed the largest VSL record")
	cmd.Flags().IntVar(&cfg.MaxRecordSlots, "max-record-slots", cfg.MaxRecordSlots, "correlation store capacity in records")
	cmd.Flags().Float64Var(&cfg.EvictFactor, "evict-factor", cfg.EvictFactor, "fraction of slots evicted when the store is full")
	cmd.Flags().Uint64Var(&cfg.MaxEpochDiff, "max-epoch-diff", cfg.MaxEpochDiff, "epoch age past which records are expired")
	cmd.Flags().BoolVar(&cfg.KeepRawHeaders, "keep-raw-headers", cfg.KeepRawHeaders, "emit original header pairs instead of the normalized index")
	cmd.Flags().BoolVar(&cfg.KeepRawLog, "keep-raw-log", cfg.KeepRawLog, "include unclassified log lines")
	cmd.Flags().BoolVar(&cfg.NoHeaderIndexing, "no-header-indexing", cfg.NoHeaderIndexing, "skip building the normalized header index")
	cmd.Flags().BoolVar(&cfg.NoLogProcessing, "no-log-processing", cfg.NoLogProcessing, "skip log classification into vars, ACL results and messages")
	cmd.Flags().BoolVar(&cfg.MaskSensitiveHeaders, "mask-sensitive-headers", cfg.MaskSensitiveHeaders, "mask credential-bearing header values in output")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable diagnostics")
	cmd.Flags().BoolVarP(&varnishV3, "varnish-v3", "3", false, "declare the input as Varnish v3 binary logs; rejected as unsupported")

	if err := cmd.Execute(); err != nil {
		obs.NewLogger("error").Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}
