package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"graduationScope/internal/api"
)

func main() {
	root := &cobra.Command{
		Use:          "graduation",
		Short:        "Token graduation eligibility and progression engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", "", "dotenv file path (default .env)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "also write logs to this file, rotated")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graduation HTTP API",
		RunE:  runServe,
	}
	addBackendFlags(serveCmd.Flags())
	addSampleFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", "", "HTTP listen address (default :8080)")
	serveCmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	serveCmd.Flags().Float64("rate-limit", 0, "write requests per second per caller (default 5)")
	serveCmd.Flags().Int("rate-burst", 0, "write request burst per caller (default 10)")
	serveCmd.Flags().Bool("sampler", false, "run the metric sampler alongside the API")
	root.AddCommand(serveCmd)

	infoCmd := &cobra.Command{
		Use:   "info <token>",
		Short: "Print eligibility, progress and registry info for a token",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	addBackendFlags(infoCmd.Flags())
	root.AddCommand(infoCmd)

	progressCmd := &cobra.Command{
		Use:   "progress <token>",
		Short: "Print the progress report for a token",
		Args:  cobra.ExactArgs(1),
		RunE:  runProgress,
	}
	addBackendFlags(progressCmd.Flags())
	root.AddCommand(progressCmd)

	graduateCmd := &cobra.Command{
		Use:   "graduate <token>",
		Short: "Graduate an eligible token",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraduate,
	}
	addBackendFlags(graduateCmd.Flags())
	graduateCmd.Flags().String("caller", "", "caller address recorded with the graduation")
	root.AddCommand(graduateCmd)

	readyCmd := &cobra.Command{
		Use:   "ready",
		Short: "List tokens nearing graduation",
		RunE:  runReady,
	}
	addBackendFlags(readyCmd.Flags())
	readyCmd.Flags().Int("min-progress", api.DefaultMinProgress, "minimum progress percent")
	readyCmd.Flags().Bool("exists", false, "only report whether any token is eligible now")
	root.AddCommand(readyCmd)

	thresholdsCmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Read or administer graduation thresholds",
	}
	thresholdsGet := &cobra.Command{
		Use:   "get",
		Short: "Print the thresholds that apply to a token, or the defaults",
		RunE:  runThresholdsGet,
	}
	thresholdsSet := &cobra.Command{
		Use:   "set",
		Short: "Replace the default thresholds, or a token override",
		RunE:  runThresholdsSet,
	}
	thresholdsReset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the built-in defaults, or drop a token override",
		RunE:  runThresholdsReset,
	}
	for _, c := range []*cobra.Command{thresholdsGet, thresholdsSet, thresholdsReset} {
		addBackendFlags(c.Flags())
		c.Flags().String("token", "", "token address (omit for the defaults)")
		c.Flags().Float64("ref-price", 0, "native/USD reference price (default: live feed)")
		thresholdsCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{thresholdsSet, thresholdsReset} {
		c.Flags().String("caller", "", "admin address performing the change")
	}
	thresholdsSet.Flags().Uint64("market-cap-usd", 0, "market cap threshold in USD")
	thresholdsSet.Flags().Uint64("volume-usd", 0, "24h volume threshold in USD")
	thresholdsSet.Flags().Uint64("holders", 0, "holder count threshold")
	root.AddCommand(thresholdsCmd)

	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Run one metric sampling pass",
		RunE:  runSample,
	}
	addBackendFlags(sampleCmd.Flags())
	addSampleFlags(sampleCmd.Flags())
	sampleCmd.Flags().Bool("prune", false, "delete samples older than the trend window (postgres only)")
	root.AddCommand(sampleCmd)

	recordCmd := &cobra.Command{
		Use:   "record <token>",
		Short: "Print the stored graduation record of a token (postgres only)",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecord,
	}
	addBackendFlags(recordCmd.Flags())
	recordCmd.Flags().Uint64("chain-id", 0, "chain id of the record (default: from rpc)")
	root.AddCommand(recordCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addBackendFlags registers the flags shared by every command that builds the engine.
// Defaults live in the config layer so that file and environment values are not masked.
func addBackendFlags(fs *pflag.FlagSet) {
	fs.String("backend", "", "graduation backend (memory, chain)")
	fs.String("rpc", "", "EVM RPC URL")
	fs.String("pg-dsn", "", "Postgres DSN for thresholds, records and samples")
	fs.String("factory", "", "token factory contract address")
	fs.String("engine", "", "trading engine contract address")
	fs.String("graduation", "", "graduation contract address")
	fs.String("price-feed", "", "native/USD aggregator address")
	fs.Float64("eth-price", 0, "static native/USD price when no price feed is set")
	fs.Duration("price-max-age", 0, "maximum age of a price feed answer")
	fs.String("signer-key", "", "hex private key submitting graduations")
	fs.StringSlice("admins", nil, "threshold admin addresses (comma-separated)")
	fs.String("records-out", "", "append graduation records to this JSONL file")
	fs.String("seed", "", "JSONL file of tokens to load into the memory backend")
	fs.Duration("receipt-timeout", 0, "how long to wait for a graduation receipt")
	fs.Uint64("default-market-cap-usd", 0, "built-in market cap threshold in USD")
	fs.Uint64("default-volume-usd", 0, "built-in 24h volume threshold in USD")
	fs.Uint64("default-holders", 0, "built-in holder count threshold")
	fs.Int("scan-concurrency", 0, "concurrent token reads during scans")
	fs.Duration("sample-window", 0, "trend window used for time to graduation")
}

func addSampleFlags(fs *pflag.FlagSet) {
	fs.Duration("sample-interval", 0, "time between sampling passes")
	fs.Int("sample-batch", 0, "tokens per sampling batch")
	fs.Int("max-retries", 0, "maximum retry attempts")
	fs.Duration("retry-backoff", 0, "initial retry backoff")
	fs.String("checkpoint", "", "sampler checkpoint file (memory store only)")
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file == "" {
		return cfg.Build()
	}

	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotated, cfg.Level)
	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}
