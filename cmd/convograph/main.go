package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/renvik/convograph/internal/canvas"
	"github.com/renvik/convograph/internal/codegen"
	"github.com/renvik/convograph/internal/diagram"
	"github.com/renvik/convograph/internal/expressions"
	"github.com/renvik/convograph/internal/logging"
	"github.com/renvik/convograph/internal/store"
	"github.com/renvik/convograph/internal/validation"
	"github.com/renvik/convograph/pkg/mcp"
)

const usage = `convograph - conversational flow editor core

Usage:
  convograph validate <flow.json>             full two-pass validation
  convograph lint <flow.json>                 advisory findings for live editing
  convograph compile <flow.json> [out.py]     generate runnable scaffold code
  convograph preview <flow.json>              Mermaid flowchart on stdout
  convograph query <flow.json> <jq-program>   run a jq program over the document
  convograph serve                            MCP server on stdio
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	core, err := buildCore(cfg)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var runErr error
	switch cmd := os.Args[1]; cmd {
	case "validate":
		runErr = cmdValidate(core, os.Args[2:], false)
	case "lint":
		runErr = cmdValidate(core, os.Args[2:], true)
	case "compile":
		runErr = cmdCompile(core, os.Args[2:])
	case "preview":
		runErr = cmdPreview(os.Args[2:])
	case "query":
		runErr = cmdQuery(core, os.Args[2:])
	case "serve":
		runErr = cmdServe(cfg, core, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

// core bundles the stateless components every subcommand shares.
type core struct {
	validator *validation.FlowValidator
	generator *codegen.Generator
	query     *expressions.QueryEngine
}

func buildCore(cfg Config) (*core, error) {
	var linter validation.ExpressionLinter
	switch cfg.Linter {
	case "cel":
		cel, err := expressions.NewCELLinter()
		if err != nil {
			return nil, fmt.Errorf("init cel linter: %w", err)
		}
		linter = cel
	default:
		linter = expressions.NewExprLinter()
	}

	validator, err := validation.NewFlowValidator(linter)
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}

	return &core{
		validator: validator,
		generator: codegen.NewGenerator(validator),
		query:     expressions.NewQueryEngine(),
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}

// cmdValidate prints every finding of the pipeline; in lint mode dangling
// references report as warnings instead of errors.
func cmdValidate(c *core, args []string, lintMode bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: convograph %s <flow.json>", mode(lintMode))
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	doc, result := c.validator.ValidateRaw(raw)
	if lintMode && doc != nil {
		result = c.validator.Lint(doc)
	}

	for _, issue := range result.Errors {
		fmt.Printf("error  %-22s %s (%s)\n", issue.Code, issue.Message, issue.Path)
	}
	for _, issue := range result.Warnings {
		fmt.Printf("warn   %-22s %s (%s)\n", issue.Code, issue.Message, issue.Path)
	}

	if !result.Valid() {
		return fmt.Errorf("%d error(s)", len(result.Errors))
	}
	fmt.Println("ok")
	return nil
}

func mode(lint bool) string {
	if lint {
		return "lint"
	}
	return "validate"
}

func cmdCompile(c *core, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: convograph compile <flow.json> [out.py]")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := validation.Decode(raw)
	if err != nil {
		return err
	}

	code, err := c.generator.Compile(doc)
	if err != nil {
		return err
	}

	if len(args) == 2 {
		return os.WriteFile(args[1], []byte(code), 0o644)
	}
	fmt.Print(code)
	return nil
}

func cmdPreview(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: convograph preview <flow.json>")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := validation.Decode(raw)
	if err != nil {
		return err
	}

	fmt.Print(diagram.RenderMermaid(canvas.ToPresentation(doc)))
	return nil
}

func cmdQuery(c *core, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: convograph query <flow.json> <jq-program>")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := validation.Decode(raw)
	if err != nil {
		return err
	}

	out, err := c.query.Query(context.Background(), args[1], doc)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cmdServe runs the MCP server on stdio with the local store and the
// revision pruner attached.
func cmdServe(cfg Config, c *core, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	policy := store.RetentionPolicy{
		KeepPerFlow: cfg.RetentionKeep,
		MaxAge:      time.Duration(cfg.RetentionMaxDays) * 24 * time.Hour,
	}
	pruner, err := store.NewPruner(st, policy, cfg.RetentionCron, logger)
	if err != nil {
		return fmt.Errorf("init pruner: %w", err)
	}
	if err := pruner.Start(ctx); err != nil {
		return err
	}
	defer pruner.Stop()

	srv := mcp.NewFlowServer(mcp.FlowServerDeps{
		Validator: c.validator,
		Generator: c.generator,
		Query:     c.query,
		Store:     st,
		Logger:    logger,
	})

	logger.Info("convograph mcp server listening on stdio", slog.String("db", cfg.DBPath))
	return srv.Serve(ctx)
}
