package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Rizky-Iqbal36/raw-blogs/config"
	"github.com/Rizky-Iqbal36/raw-blogs/interceptors"
	"github.com/Rizky-Iqbal36/raw-blogs/internal/reliability"
	"github.com/Rizky-Iqbal36/raw-blogs/internal/scenario"
	"github.com/Rizky-Iqbal36/raw-blogs/transports/rabbitmq"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	envFile  string
	file     string
	auditURL string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "decorators",
		Short: "Run method interceptor stacks",
		Long: `Decorators builds interceptor stacks around an object and calls methods through them.
Stacks come from a built-in scenario or a YAML scenario file.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "Scenario YAML file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every intercepted call")

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run the calls of a scenario",
		Long:  "Run a built-in scenario (" + strings.Join(scenario.BuiltinNames(), ", ") + ") or the one given with --file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runScenario(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args)
		},
	}
	runCmd.Flags().StringVar(&opts.auditURL, "audit-url", "", "Publish audit records to this AMQP broker")

	methodsCmd := &cobra.Command{
		Use:   "methods [scenario]",
		Short: "Print the method registry of a scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadScenario(opts, args)
			if err != nil {
				return err
			}
			printMethods(cmd.OutOrStdout(), s)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, name := range scenario.BuiltinNames() {
				s, _ := scenario.Builtin(name)
				fmt.Fprintf(w, "%-14s %s\n", name, s.Description)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, methodsCmd, listCmd)
	return rootCmd
}

func loadScenario(opts *options, args []string) (*scenario.Scenario, error) {
	if opts.file != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("cannot use --file together with scenario %q", args[0])
		}
		return scenario.Load(opts.file)
	}

	name := "simple"
	if len(args) > 0 {
		name = args[0]
	}
	return scenario.Builtin(name)
}

func runScenario(ctx context.Context, stdout, stderr io.Writer, opts *options, args []string) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.verbose {
		cfg.Verbose = true
	}
	if opts.auditURL != "" {
		cfg.AuditURL = opts.auditURL
	}
	logger := cfg.Logger(stderr)

	s, err := loadScenario(opts, args)
	if err != nil {
		return err
	}

	target := s.Build(stdout, logger)
	methods := target.Registry().Names()
	builder := interceptors.Wrap(target)

	if cfg.CallTimeout > 0 {
		builder.With(interceptors.NewTimeoutHandler(cfg.CallTimeout), methods...)
	}
	if cfg.BreakerThreshold > 0 {
		breaker := cfg.NewCircuitBreaker(target.Registry().TargetName(), breakerLogger(logger))
		builder.With(interceptors.NewCircuitBreakerHandler(breaker), methods...)
	}
	// Timed out calls are not retried, see InvocationTimeoutError.
	if cfg.RetryAttempts > 0 {
		builder.With(interceptors.NewRetryHandler(cfg.NewRetryPolicy()).WithLogger(logger), methods...)
	}
	if cfg.Verbose {
		builder.With(interceptors.NewLoggingHandler(logger), methods...)
	}
	if cfg.AuditURL != "" {
		publisher, err := rabbitmq.Dial(cfg.AuditURL,
			rabbitmq.WithExchange(cfg.AuditExchange),
			rabbitmq.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to connect audit publisher: %w", err)
		}
		defer publisher.Close()
		builder.With(interceptors.NewAuditHandler(publisher, logger), methods...)
	}

	printResults(stdout, s.Run(ctx, builder.Build()))
	return nil
}

func breakerLogger(logger *slog.Logger) reliability.StateChangeListener {
	return reliability.StateChangeFunc(func(name string, from, to reliability.State, reason string) {
		logger.Warn("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)
	})
}

func printMethods(w io.Writer, s *scenario.Scenario) {
	target := s.Build(io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg := target.Registry()

	fmt.Fprintf(w, "%s (%d layers)\n", reg.TargetName(), interceptors.Depth(target))
	for _, name := range reg.Names() {
		var layers []string
		for _, l := range s.Layers {
			for _, m := range l.Methods {
				if m == name {
					layers = append(layers, l.Name)
					break
				}
			}
		}
		if len(layers) == 0 {
			fmt.Fprintf(w, "  %s\n", name)
			continue
		}
		fmt.Fprintf(w, "  %s <- %s\n", name, strings.Join(layers, ", "))
	}
}

func printResults(w io.Writer, results []scenario.CallResult) {
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", r.Method, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %v\n", r.Method, r.Value)
	}
}
