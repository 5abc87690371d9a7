// Package main provides the hvacsearch CLI for one-shot queries and index administration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/app"
	"github.com/kailas-cloud/hvacsearch/internal/config"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/hvacsearch/internal/logger"
	chiTransport "github.com/kailas-cloud/hvacsearch/internal/transport/chi"
	"github.com/kailas-cloud/hvacsearch/internal/version"
)

var (
	// Global flags
	envName  string
	logLevel string
	timeout  time.Duration

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "hvacsearch-cli",
	Short:         "Query the HVAC records search pipeline from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		if envName == "" {
			envName = config.GetEnv()
		}

		var err error
		cfg, err = config.Load(envName)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		logger, err = logpkg.NewLogger(envName, level)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "config environment (default: $ENV or local)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall command deadline")

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newQueryCmd() *cobra.Command {
	var (
		maxResults int
		role       string
		opco       string
		vendorID   string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one search and print the JSON response",
		Example: `  hvacsearch-cli query "overdue invoices from Carrier"
  hvacsearch-cli query --role analyst --opco NE "top vendors by spend"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var limit *int
			if cmd.Flags().Changed("max-results") {
				limit = &maxResults
			} else {
				limit = &cfg.Search.DefaultMaxResults
			}
			req, err := request.New(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			a, err := app.Open(ctx, &cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			who := principal.Principal{UserID: userID, Role: role, OpCo: opco, VendorID: vendorID}
			ctx = logpkg.ContextWithLogger(ctx, logger.With(zap.String("user_id", who.UserID)))

			resp, err := a.Search.Search(ctx, who, req)
			if err != nil {
				return fmt.Errorf("search: %s", logpkg.Redact(err.Error(), cfg.Secrets()...))
			}
			return printJSON(cmd.OutOrStdout(), chiTransport.NewSearchResponse(resp))
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max-results", "n", request.DefaultMaxResults, "result ceiling (1-100)")
	cmd.Flags().StringVar(&role, "role", principal.RoleSuperAdmin, "caller role")
	cmd.Flags().StringVar(&opco, "opco", "", "caller operating company (empty for global)")
	cmd.Flags().StringVar(&vendorID, "vendor", "", "vendor binding for vendor-portal callers")
	cmd.Flags().StringVar(&userID, "user", "cli", "caller user id")
	return cmd
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or provision the vector index",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the vector index if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.Open(ctx, &cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.Index.EnsureIndex(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"index":   cfg.Index.Name,
				"created": created,
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report component health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.Open(ctx, &cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.Health.Check(ctx)
			checks := make(map[string]string, len(report.Checks))
			for k, v := range report.Checks {
				checks[k] = string(v)
			}
			return printJSON(cmd.OutOrStdout(), chiTransport.HealthResponse{
				Status: string(report.Status),
				Checks: checks,
			})
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), version.Get())
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
