package main

import (
	"encoding/json"
	"fmt"

	"github.com/listfresh/listfresh/internal/api"
	"github.com/listfresh/listfresh/internal/resolver"
	"github.com/listfresh/listfresh/internal/xrpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <at-uri>",
		Short: "Resolve one list URI and print the summary as JSON",
		Example: `  listfresh resolve at://did:plc:test123/app.bsky.graph.list/list123
  listfresh resolve at://alice.bsky.social/app.bsky.graph.list/3kabc`,
		Args: cobra.ExactArgs(1),
		RunE: c.runResolve,
	}
}

func (c *cli) runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the JSON result only.
	logger := mustBuildLogger(cfg.LogLevel(), "stderr")
	defer logger.Sync() //nolint:errcheck // best-effort flush

	client, err := xrpc.NewClient(xrpc.Config{
		Service:   cfg.Upstream.Service,
		Timeout:   cfg.Upstream.Timeout,
		UserAgent: cfg.Upstream.UserAgent,
	}, nil, logger)
	if err != nil {
		return err
	}

	summary, err := resolver.NewResolver(client, nil, logger).ResolveURI(cmd.Context(), args[0])
	if err != nil {
		code := resolver.CodeOf(err)
		logger.Debug("resolution failed", zap.Error(err))
		return &resolveError{code: code}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewListInfoResponse(summary))
}

// resolveError reports the caller-facing code and message, never the cause.
type resolveError struct {
	code resolver.Code
}

func (e *resolveError) Error() string {
	_, name := api.ErrorStatus(e.code)
	return fmt.Sprintf("%s: %s", name, e.code.Message())
}
