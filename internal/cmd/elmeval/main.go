// Command elmeval evaluates the expression definitions of ELM JSON
// libraries and prints the results as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/damedic/cql-engine-go/elm"
	"github.com/damedic/cql-engine-go/engine"
	"github.com/damedic/cql-engine-go/library"
	"github.com/damedic/cql-engine-go/units"
)

const (
	Version = "0.1.0"
	appName = "elmeval"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Evaluate ELM libraries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(evalCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

type evalFlags struct {
	config      string
	libraries   []string
	version     string
	context     string
	subjects    []string
	data        string
	noCache     bool
	concurrency int
	logLevel    string
}

func evalCmd() *cobra.Command {
	var f evalFlags
	cmd := &cobra.Command{
		Use:   "eval <library> [definition...]",
		Short: "Evaluate definitions of a library",
		Long: `Evaluate the named definitions of a library, or all public definitions
when none are named. With --subject the library is evaluated once per
subject, binding the context to the subject id.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runEval(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), config, f, args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringSliceVarP(&f.libraries, "libraries", "l", nil, "Library directories or zip archives, searched in order")
	cmd.Flags().StringVar(&f.version, "version", "", "Library version (default: latest available)")
	cmd.Flags().StringVar(&f.context, "context", "", "Context bound to each subject (default Patient)")
	cmd.Flags().StringSliceVarP(&f.subjects, "subject", "s", nil, "Subject ids to evaluate")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "JSON file with resources per subject and data type")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Disable expression caching")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Subjects evaluated in parallel (default 8)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

// resolveConfig merges the config file, if any, with the flags that were
// set explicitly.
func resolveConfig(cmd *cobra.Command, f evalFlags) (*Config, error) {
	config := DefaultConfig()
	if f.config != "" {
		loaded, err := LoadConfig(f.config)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("libraries") {
		config.Libraries = f.libraries
	}
	if flags.Changed("context") {
		config.Context = f.context
	}
	if flags.Changed("data") {
		config.Data = f.data
	}
	if flags.Changed("no-cache") {
		config.Caching = !f.noCache
	}
	if flags.Changed("concurrency") {
		config.Concurrency = f.concurrency
	}
	if flags.Changed("log-level") {
		config.LogLevel = f.logLevel
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func runEval(ctx context.Context, stdout, stderr io.Writer, config *Config, f evalFlags, libraryID string, definitions []string) error {
	level, _ := parseLevel(config.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	loader, closer, err := openLibraries(config.Libraries)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := []engine.Option{
		engine.WithUnitConverter(units.NewUCUM(units.WithLogger(logger))),
		engine.WithLogger(logger),
		engine.WithExpressionCaching(config.Caching),
		engine.WithConcurrency(config.Concurrency),
	}
	if config.Data != "" {
		data, err := loadData(config.Data)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithDataProvider(data))
	}

	libs := library.NewManager(loader, library.WithLogger(logger))
	id := elm.VersionedIdentifier{ID: libraryID, Version: f.version}
	if _, err := libs.Load(id); err != nil {
		return err
	}
	e := engine.New(libs, opts...)
	req := engine.Request{Library: id, Expressions: definitions}

	var out []byte
	if len(f.subjects) == 0 {
		res, err := e.Evaluate(ctx, req)
		if err != nil {
			return err
		}
		if out, err = json.Marshal(res); err != nil {
			return err
		}
	} else {
		logger.Info("evaluating population", slog.String("library", id.String()), slog.Int("subjects", len(f.subjects)))
		results, err := e.EvaluatePopulation(ctx, req, config.Context, f.subjects)
		if err != nil {
			return err
		}
		if out, err = marshalPopulation(f.subjects, results); err != nil {
			return err
		}
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, out, "", "  "); err != nil {
		return err
	}
	indented.WriteByte('\n')
	_, err = indented.WriteTo(stdout)
	return err
}

func loadData(path string) (*engine.MemoryData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()
	return engine.DecodeMemoryData(file)
}

// marshalPopulation renders an object of subject id to result, in subject
// order.
func marshalPopulation(subjects []string, results []*engine.Result) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, subject := range subjects {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(subject)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(results[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
