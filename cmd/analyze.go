package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/grading"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

var analyzeFlags struct {
	url        string
	siteID     string
	name       string
	industry   string
	budget     int
	weights    string
	maxCost    float64
	reviews    int
	rating     float64
	employees  int
	locations  int
	engagement string
	jsonOut    bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one website and score the lead",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		site, err := siteFromFlags(cmd)
		if err != nil {
			return err
		}
		opts := runOptions(cfg)
		if analyzeFlags.weights != "" {
			opts.WeightOverride, err = grading.ParseWeights(analyzeFlags.weights)
			if err != nil {
				return eris.Wrap(err, "parse --weights")
			}
		}
		if cmd.Flags().Changed("max-cost") {
			opts.MaxCostUSD = analyzeFlags.maxCost
		}

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.Run(ctx, site, opts)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", out.Analysis.RunID),
			zap.String("site", site.RootURL),
			zap.Float64("score", out.Analysis.OverallScore),
			zap.String("grade", out.Analysis.Grade),
			zap.Float64("cost_usd", out.Analysis.TotalCostUSD),
			zap.Bool("incomplete", out.Analysis.Incomplete),
		)

		if analyzeFlags.jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		return renderReport(os.Stdout, out)
	},
}

// siteFromFlags builds the Site for one analyze invocation. Business
// signals are only set for flags the caller actually passed.
func siteFromFlags(cmd *cobra.Command) (model.Site, error) {
	f := analyzeFlags
	if f.url == "" {
		return model.Site{}, eris.New("--url is required")
	}
	rootURL := f.url
	if !strings.Contains(rootURL, "://") {
		rootURL = "https://" + rootURL
	}

	budget := cfg.Pipeline.PageBudget
	if cmd.Flags().Changed("budget") {
		budget = f.budget
	}

	site := model.Site{
		ID:         f.siteID,
		RootURL:    rootURL,
		Name:       f.name,
		Industry:   f.industry,
		PageBudget: budget,
	}
	flags := cmd.Flags()
	if flags.Changed("reviews") {
		n := f.reviews
		site.Business.ReviewCount = &n
	}
	if flags.Changed("rating") {
		r := f.rating
		site.Business.Rating = &r
	}
	if flags.Changed("employees") {
		n := f.employees
		site.Business.EmployeeEstimate = &n
	}
	site.Business.Locations = f.locations
	site.Business.Engagement = model.ParseEngagement(f.engagement)
	return site, nil
}

// renderReport writes a human-readable summary of a run.
func renderReport(w io.Writer, out *model.RunOutput) error {
	a := out.Analysis
	grade := a.Grade
	if !a.Graded {
		grade = "n/a"
	}

	fmt.Fprintf(w, "%s  %s\n", a.RootURL, a.RunID)
	fmt.Fprintf(w, "Overall: %.1f (%s)  weights: %s  cost: $%.4f  elapsed: %s\n",
		a.OverallScore, grade, a.WeightSource, a.TotalCostUSD, a.Elapsed.Round(time.Millisecond))
	if a.Incomplete {
		fmt.Fprintf(w, "INCOMPLETE: %s\n", a.IncompleteReason)
	}

	dims := pterm.TableData{{"Dimension", "Score", "Weight", "Issues", "Pages", "Note"}}
	for _, d := range model.AllDimensions() {
		ds, ok := a.Dimensions[d]
		if !ok {
			dims = append(dims, []string{string(d), "-", fmt.Sprintf("%.2f", a.Weights[d]), "-", "-", "not scored"})
			continue
		}
		dims = append(dims, []string{
			string(d),
			fmt.Sprintf("%.1f", ds.Score),
			fmt.Sprintf("%.2f", a.Weights[d]),
			fmt.Sprintf("%d", len(ds.Issues)),
			fmt.Sprintf("%d", ds.PagesAnalyzed),
			ds.DegradedReason,
		})
	}
	if err := renderTable(w, dims); err != nil {
		return err
	}

	if out.Lead != nil {
		fmt.Fprintf(w, "\nLead: %.1f (%s)\n%s\n", out.Lead.Priority, out.Lead.Tier, out.Lead.Reasoning)
	}

	syn := a.Synthesis
	if len(syn.Issues) > 0 {
		fmt.Fprintf(w, "\nTop issues (%s, %d raw -> %d, %.0f%% reduction)\n",
			syn.Source, a.RawIssueCount, len(syn.Issues), syn.ReductionPct)
		issues := pterm.TableData{{"#", "Severity", "Category", "Issue", "Pages"}}
		for i, is := range syn.Issues {
			issues = append(issues, []string{
				fmt.Sprintf("%d", i+1),
				string(is.Severity),
				string(is.Category),
				is.Title,
				fmt.Sprintf("%d", len(is.Pages)),
			})
		}
		if err := renderTable(w, issues); err != nil {
			return err
		}
	}
	if syn.ExecutiveSummary != "" {
		fmt.Fprintf(w, "\n%s\n", syn.ExecutiveSummary)
	}

	if len(a.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d)\n", len(a.Warnings))
		warnings := append([]model.Warning(nil), a.Warnings...)
		sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Stage < warnings[j].Stage })
		for _, wn := range warnings {
			if wn.Subject != "" {
				fmt.Fprintf(w, "  [%s] %s: %s\n", wn.Stage, wn.Subject, wn.Reason)
			} else {
				fmt.Fprintf(w, "  [%s] %s\n", wn.Stage, wn.Reason)
			}
		}
	}
	return nil
}

func renderTable(w io.Writer, data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return eris.Wrap(err, "render table")
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.url, "url", "", "website root URL (required)")
	f.StringVar(&analyzeFlags.siteID, "site-id", "", "stable site id (default: the root URL)")
	f.StringVar(&analyzeFlags.name, "name", "", "business name")
	f.StringVar(&analyzeFlags.industry, "industry", "", "business industry, used for weighting and lead fit")
	f.IntVar(&analyzeFlags.budget, "budget", 0, "max pages to capture (default from config)")
	f.StringVar(&analyzeFlags.weights, "weights", "", "weight override, e.g. design=0.4,seo=0.3,content=0.3")
	f.Float64Var(&analyzeFlags.maxCost, "max-cost", 0, "cancel the run once it costs more than this many USD")
	f.IntVar(&analyzeFlags.reviews, "reviews", 0, "known review count")
	f.Float64Var(&analyzeFlags.rating, "rating", 0, "known average rating (0-5)")
	f.IntVar(&analyzeFlags.employees, "employees", 0, "estimated employee count")
	f.IntVar(&analyzeFlags.locations, "locations", 0, "number of business locations")
	f.StringVar(&analyzeFlags.engagement, "engagement", "", "prior outreach: contacted, opened, replied, meeting")
	f.BoolVar(&analyzeFlags.jsonOut, "json", false, "print the full result as JSON")
	_ = analyzeCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(analyzeCmd)
}
