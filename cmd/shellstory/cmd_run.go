package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/shellstory/internal/llm"
	"github.com/HendryAvila/shellstory/internal/pipeline"
	"github.com/HendryAvila/shellstory/internal/server"
)

var (
	runFileKey string
	runItemID  string
	runContext string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once against the local workspace",
	Long: `Run the pipeline once against the local workspace and print the result
as JSON. Runs outside an MCP client cannot use sampling, so llm.provider
must be gemini (set GEMINI_API_KEY).`,
}

var runScopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Write the Scope Analysis section",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) (*pipeline.Result, error) {
			return p.AnalyzeScope(ctx, req)
		})
	},
}

var runStoriesCmd = &cobra.Command{
	Use:   "stories",
	Short: "Write the Shell Stories section",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) (*pipeline.Result, error) {
			return p.WriteShellStories(ctx, req)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{runScopeCmd, runStoriesCmd} {
		c.Flags().StringVar(&runFileKey, "file", "", "Design file key (required)")
		c.Flags().StringVar(&runItemID, "item", "", "Work item ID (required)")
		c.Flags().StringVar(&runContext, "context", "", "Optional feature context")
		_ = c.MarkFlagRequired("file")
		_ = c.MarkFlagRequired("item")
		runCmd.AddCommand(c)
	}
}

type runFunc func(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) (*pipeline.Result, error)

func runPipeline(cmd *cobra.Command, run runFunc) error {
	if cfg.LLM.Provider != llm.ProviderGemini {
		return errors.New("run needs llm.provider gemini: sampling is only available inside an MCP client")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := server.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("closing resources", zap.Error(err))
		}
	}()

	res, runErr := run(ctx, deps.Pipeline, pipeline.Request{
		FileKey: runFileKey,
		ItemID:  runItemID,
		Context: runContext,
	})
	if res != nil {
		if err := printJSON(cmd, res); err != nil {
			return err
		}
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
