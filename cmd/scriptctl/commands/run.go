package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/app"
	"github.com/kapu/persona-script-go/internal/config"
	"github.com/kapu/persona-script-go/internal/session"
)

var (
	planFile string
	outDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Produce an episode script from a YAML plan",
	Long: `Produce an episode script from a YAML plan.

Each persona's sources are captured and profiled, optional show context
sources are analyzed, and the dialogue is generated. The export document is
written to the output directory.

Example plan (episode.yaml):
  settings:
    model: gemini-2.5-flash
    temperature: 0.8
  personas:
    - name: Alex
      role: Host
      sources:
        - path: alex_transcript.txt
        - path: alex_interview.mp3
    - name: Sam
      role: Guest
      links: [https://example.com/sam-blog]
  show:
    title: Deep Space Weekly
    host: Alex
    context:
      - path: notes.pdf

Example:
  scriptctl run --plan episode.yaml --out ./out`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := LoadPlan(planFile)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		container, err := app.Build(buildCtx, cfg, logger)
		cancel()
		if err != nil {
			return err
		}
		defer container.Close()

		runner := &Runner{Workflow: container.Workflow, Progress: cmd.ErrOrStderr()}
		sess := container.Store.Create()
		st, err := runner.Run(ctx, sess, plan)
		if err != nil {
			logger.Error("Plan failed", zap.String("session", sess.ID()), zap.Error(err))
			return err
		}

		path, err := writeExport(st, outDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&planFile, "plan", "p", "", "episode plan file (YAML)")
	runCmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	_ = runCmd.MarkFlagRequired("plan")
}

// writeExport stores the export document under dir using the export filename.
func writeExport(st session.State, dir string) (string, error) {
	doc, filename := session.Export(st, time.Now())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
