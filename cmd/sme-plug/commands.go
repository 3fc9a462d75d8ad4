package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/app"
	"github.com/upb/sme-plug/config"
	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/routes"
	"github.com/upb/sme-plug/services/guard"
)

// errBlocked is returned by check when the input guard blocks the text.
var errBlocked = errors.New("query blocked by input guardrails")

// loadConfig is replaced in tests.
var loadConfig = config.New

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sme-plug",
		Short:         "Guarded retrieval and generation for domain expert personas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCheckCmd(), newPersonasCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LoggerOptions{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("sme-plug listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = deps.Close(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	return deps.Close(shutdownCtx)
}

func newCheckCmd() *cobra.Command {
	var personaID string
	cmd := &cobra.Command{
		Use:   "check <text>",
		Short: "Run the input guardrails on a query without generating an answer",
		Long: "Evaluates the query against the persona's topic scope, blocked terms, " +
			"prompt injection rules and PII patterns. Exits 1 when the query would be blocked.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], personaID)
		},
	}
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "persona id (defaults to the active persona)")
	return cmd
}

// checkOutput is the JSON printed by check.
type checkOutput struct {
	PersonaID string                  `json:"persona_id"`
	Verdict   models.GuardrailVerdict `json:"verdict"`
	Redacted  string                  `json:"redacted_query,omitempty"`
}

func runCheck(cmd *cobra.Command, text, personaID string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	registry, err := app.NewReadOnlyPersonaRegistry(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	p, err := registry.Resolve(personaID)
	if err != nil {
		return err
	}

	g := guard.NewInputGuard(zap.NewNop(), nil)
	verdict := g.Evaluate(text, p)

	out := checkOutput{PersonaID: p.ID, Verdict: verdict}
	if verdict.Decision == models.DecisionFlagged {
		out.Redacted = g.Redact(text)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if verdict.Decision == models.DecisionBlocked {
		return errBlocked
	}
	return nil
}

func newPersonasCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "List configured personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonas(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print personas as JSON")
	return cmd
}

func runPersonas(cmd *cobra.Command, asJSON bool) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	registry, err := app.NewReadOnlyPersonaRegistry(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	personas := registry.List()
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(personas)
	}

	active := registry.ActiveID()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tID\tNAME\tGUARDRAIL\tCORPUS FILES")
	for _, p := range personas {
		marker := ""
		if p.ID == active {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", marker, p.ID, p.Name, p.GuardrailLevel, len(p.CorpusFiles))
	}
	return tw.Flush()
}
