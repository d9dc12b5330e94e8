package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"code-playground/internal/app"
	"code-playground/internal/config"
	"code-playground/internal/library"
	"code-playground/internal/playground"
	"code-playground/internal/sandbox"
)

const defaultServer = "http://localhost:8080"

var (
	serverURL  string
	apiKey     string
	configPath string
	timeout    time.Duration
	explain    bool
	example    string
	jsonOut    bool
	verbose    bool
)

// exitError carries a process exit status out of a command.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "playground",
		Short:         "Run Python snippets and explain what went wrong",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen})
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("PLAYGROUND_SERVER"), "Server URL (run executes locally when empty)")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("PLAYGROUND_API_KEY"), "API key")
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "Config file for local execution")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a snippet from a file, an example or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVarP(&example, "example", "e", "", "Run a library example by slug")
	root.AddCommand(runCmd)

	execCmd := &cobra.Command{
		Use:   "exec [code]",
		Short: "Execute code on a playground server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExec,
	}
	addRunFlags(execCmd)
	root.AddCommand(execCmd)

	examplesCmd := &cobra.Command{
		Use:   "examples",
		Short: "List the example library",
		Args:  cobra.NoArgs,
		RunE:  runExamples,
	}
	examplesCmd.AddCommand(&cobra.Command{
		Use:   "show <slug>",
		Short: "Print an example's code",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowExample,
	})
	root.AddCommand(examplesCmd)

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	root.AddCommand(listCmd)

	root.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve the playground as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	var exit exitError
	switch {
	case errors.As(err, &exit):
		os.Exit(exit.code)
	case err != nil:
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Execution timeout (0 uses the server default)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Attach a beginner explanation of the code")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw JSON report")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runRun(cmd *cobra.Command, args []string) error {
	code, err := readCode(cmd.InOrStdin(), args, example, true)
	if err != nil {
		return err
	}
	req := playground.Request{Code: code, Timeout: timeout, Explain: explain}

	var rep *playground.Report
	if serverURL != "" {
		rep, err = newClient(serverURL, apiKey).execute(cmd.Context(), req)
	} else {
		rep, err = runLocal(cmd.Context(), req)
	}
	if err != nil {
		return err
	}
	return report(cmd.OutOrStdout(), rep)
}

func runExec(cmd *cobra.Command, args []string) error {
	code, err := readCode(cmd.InOrStdin(), args, "", false)
	if err != nil {
		return err
	}
	rep, err := newClient(remote(), apiKey).execute(cmd.Context(), playground.Request{
		Code:    code,
		Timeout: timeout,
		Explain: explain,
	})
	if err != nil {
		return err
	}
	return report(cmd.OutOrStdout(), rep)
}

// readCode takes the snippet from an example, then the argument, then stdin.
// With fromFile the argument names a file instead of holding the code.
func readCode(stdin io.Reader, args []string, slug string, fromFile bool) (string, error) {
	switch {
	case slug != "":
		ex, ok := library.Get(slug)
		if !ok {
			return "", fmt.Errorf("unknown example %q (see `playground examples`)", slug)
		}
		return ex.Code, nil
	case len(args) > 0 && fromFile:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func runLocal(ctx context.Context, req playground.Request) (*playground.Report, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Service.Run(ctx, req)
}

func report(w io.Writer, rep *playground.Report) error {
	if jsonOut {
		if err := writeJSON(w, rep); err != nil {
			return err
		}
	} else {
		renderReport(w, rep)
	}
	return statusExit(rep.Status)
}

// statusExit maps a report status to the CLI exit status.
func statusExit(s sandbox.Status) error {
	switch s {
	case sandbox.StatusSuccess:
		return nil
	case sandbox.StatusTimeout:
		return exitError{code: 124}
	default:
		return exitError{code: 1}
	}
}

func remote() string {
	if serverURL == "" {
		return defaultServer
	}
	return serverURL
}

func runExamples(cmd *cobra.Command, _ []string) error {
	renderExamples(cmd.OutOrStdout(), library.All())
	return nil
}

func runShowExample(cmd *cobra.Command, args []string) error {
	ex, ok := library.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown example %q", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), ex.Code)
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	h, err := newClient(remote(), apiKey).health(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), h)
}

func runList(cmd *cobra.Command, _ []string) error {
	execs, err := newClient(remote(), apiKey).listExecutions(cmd.Context())
	if err != nil {
		return err
	}
	renderExecutions(cmd.OutOrStdout(), execs)
	return nil
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return serveMCP(cmd.Context(), a.Service)
}
