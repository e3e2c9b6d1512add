package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/plan"
	"github.com/sells-group/visibility-cli/internal/scrape"
	"github.com/sells-group/visibility-cli/internal/tui"
)

var (
	analyzeURL  string
	analyzePlan string
	analyzeOut  string
	analyzeTUI  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a visibility analysis from a plan file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, collab, url, err := loadCollaborators(analyzePlan, analyzeURL)
		if err != nil {
			return err
		}
		zap.L().Info("analysis plan",
			zap.String("url", url),
			zap.Int("competitors", len(p.Competitors)),
			zap.Int("prompts", len(p.Prompts)),
		)

		env, err := initEngine(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		ctrl := env.NewController(collab)
		run, err := analysis.Autopilot(ctx, ctrl, url)
		if err != nil {
			return eris.Wrap(err, "start analysis")
		}

		var result *model.AnalysisResult
		if analyzeTUI {
			result, err = tui.Run(context.WithoutCancel(ctx), run, ctrl.Cancel)
		} else {
			result, err = followRun(ctx, run, ctrl.Cancel)
		}
		if err != nil {
			return eris.Wrap(err, "analysis")
		}

		if analyzeOut != "" {
			if err := writeResult(analyzeOut, result); err != nil {
				return err
			}
			zap.L().Info("result written", zap.String("path", analyzeOut))
		}
		formatRankings(cmd.OutOrStdout(), result)
		return nil
	},
}

// loadCollaborators builds the collaborator set. With --url the company is
// scraped from its website and the plan (optional) supplies the rest.
func loadCollaborators(planPath, url string) (*plan.Plan, analysis.Collaborators, string, error) {
	p := &plan.Plan{}
	if planPath != "" {
		loaded, err := plan.Load(planPath)
		if err != nil {
			return nil, analysis.Collaborators{}, "", err
		}
		p = loaded
	}

	collab := analysis.Collaborators{Scraper: p, Competitors: p, Personas: p, Prompts: p}
	switch {
	case url != "":
		collab.Scraper = scrape.NewWebsite()
	case p.HasCompany():
		url = p.Company.URL
	default:
		return nil, analysis.Collaborators{}, "", eris.New("either --url or a plan with a company is required")
	}
	return p, collab, url, nil
}

// followRun logs progress until the run settles. Cancelling ctx stops new
// cells from being issued; the partial result is still returned.
func followRun(ctx context.Context, run *analysis.Run, cancel func() error) (*model.AnalysisResult, error) {
	go func() {
		select {
		case <-ctx.Done():
			if err := cancel(); err == nil {
				zap.L().Info("interrupt: waiting for calls in flight")
			}
		case <-run.Done():
		}
	}()

	for p := range run.Progress() {
		zap.L().Info("progress",
			zap.Float64("percent", p.Progress),
			zap.String("message", p.Message),
			zap.Bool("final", p.Final),
		)
	}
	return run.Wait(context.WithoutCancel(ctx))
}

func writeResult(path string, result *model.AnalysisResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write result %s", path)
	}
	return nil
}

// formatRankings writes the ranking table and per-provider share of voice.
func formatRankings(out io.Writer, r *model.AnalysisResult) {
	providers := map[string]bool{}
	for _, pc := range r.ProviderComparison {
		for name := range pc.Providers {
			providers[name] = true
		}
	}
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprint(w, "#\tBRAND\tVISIBILITY\tMENTIONS\tAVG_POS\tSENTIMENT")
	for _, n := range names {
		_, _ = fmt.Fprintf(w, "\t%s", n)
	}
	_, _ = fmt.Fprintln(w)

	byName := make(map[string]model.ProviderComparison, len(r.ProviderComparison))
	for _, pc := range r.ProviderComparison {
		byName[pc.Competitor] = pc
	}
	for i, rk := range r.Competitors {
		name := rk.Name
		if rk.IsOwn {
			name += " *"
		}
		pos := "-"
		if rk.AveragePosition > 0 {
			pos = fmt.Sprintf("%.1f", rk.AveragePosition)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.1f%%\t%d\t%s\t%.0f", i+1, name, rk.VisibilityScore, rk.Mentions, pos, rk.SentimentScore)
		for _, n := range names {
			_, _ = fmt.Fprintf(w, "\t%.1f%%", byName[rk.Name].Providers[n].VisibilityScore)
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d mentions, %d responses, %d failed cells", r.TotalMentions, len(r.Responses), r.FailedCells)
	if r.Cancelled {
		_, _ = fmt.Fprint(out, ", cancelled before every prompt was sent")
	}
	_, _ = fmt.Fprintln(out)
	if r.Usage.CostUSD > 0 {
		_, _ = fmt.Fprintf(out, "estimated cost $%.4f\n", r.Usage.CostUSD)
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "company website; scraped instead of the plan's company")
	analyzeCmd.Flags().StringVar(&analyzePlan, "plan", "", "path to the analysis plan (YAML)")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "write the full result as JSON to this path")
	analyzeCmd.Flags().BoolVar(&analyzeTUI, "tui", false, "show an interactive progress view")
	rootCmd.AddCommand(analyzeCmd)
}
