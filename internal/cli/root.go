// Package cli provides the command-line interface for LeapPrep.
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/leapstack-labs/leapprep/internal/cli/commands"
	"github.com/leapstack-labs/leapprep/internal/cli/config"
	"github.com/leapstack-labs/leapprep/internal/cli/output"
	"github.com/leapstack-labs/leapprep/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// rendererKey is used to store renderer in context.
type rendererKey struct{}

// newLogger builds the command logger. Replaced in tests.
var newLogger = logging.New

// NewRootCmd creates and returns the root command. The logger is closed after
// a successful command; use Execute to also close it when a command fails.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

// newRootCmd returns the root command and a function that closes the logger
// the command opened. The function is safe to call more than once.
func newRootCmd() (*cobra.Command, func()) {
	var (
		mu        sync.Mutex
		closeFns  []func()
		closeLogger = func() {
			mu.Lock()
			fns := closeFns
			closeFns = nil
			mu.Unlock()
			for _, fn := range fns {
				fn()
			}
		}
	)

	rootCmd := &cobra.Command{
		Use:   "leapprep",
		Short: "LeapPrep - House Sales Preprocessing",
		Long: `LeapPrep cleans a table of house sales and derives model features.

The pipeline imputes missing values, normalizes the basement and renovation
columns, then adds price per area, coordinates relative to the center of
wealth and the distance to the nearest waterfront house. Runs are tracked in
a local state database.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			var err error
			cfg, err = config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := cfg.Log.Level
			if cfg.Verbose && !cmd.Flags().Changed("log-level") {
				level = "debug"
			}
			logger, closeFn, err := newLogger(cmd.ErrOrStderr(), logging.Options{
				Level:  level,
				Format: cfg.Log.Format,
				SeqURL: cfg.Log.SeqURL,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			closeFns = append(closeFns, closeFn)
			mu.Unlock()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey{}, cfg)
			ctx = config.WithLogger(ctx, logger)

			// Create and store renderer based on output mode
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			ctx = context.WithValue(ctx, rendererKey{}, renderer)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			closeLogger()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
House sales preprocessing pipeline built with Go
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapprep.yaml, searched upward)")
	rootCmd.PersistentFlags().String("input", "", "Path to the input table")
	rootCmd.PersistentFlags().String("output-path", "", "Path of the output table (empty to skip writing)")
	rootCmd.PersistentFlags().String("state", "", "Path to state database")
	rootCmd.PersistentFlags().String("env", "", "Environment name")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json|yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("env", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dev", "staging", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewSplitCommand())
	rootCmd.AddCommand(commands.NewStepsCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd, closeLogger
}

// Execute runs the root command. The logger is flushed even when the command
// fails, so failure records reach every sink.
func Execute() error {
	rootCmd, closeLogger := newRootCmd()
	err := rootCmd.Execute()
	closeLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	// Return default config if none in context
	return &config.Config{
		InputPath:    config.DefaultInputPath,
		OutputPath:   config.DefaultOutputPath,
		StatePath:    config.DefaultStateFile,
		Environment:  config.DefaultEnv,
		OutputFormat: config.DefaultOutput,
	}
}

// GetRenderer retrieves the renderer from the command context.
func GetRenderer(ctx context.Context) *output.Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	// Return default renderer if none in context
	return output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for LeapPrep.

To load completions:

Bash:
  $ source <(leapprep completion bash)

Zsh:
  $ leapprep completion zsh > "${fpath[1]}/_leapprep"

Fish:
  $ leapprep completion fish | source

PowerShell:
  PS> leapprep completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
