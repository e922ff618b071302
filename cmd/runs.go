package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/monitoring"
	"github.com/belivan/MaxantAgency-sub002/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect analysis run history",
	Long:  "Commands for listing, viewing, and summarizing persisted analysis runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		site, _ := cmd.Flags().GetString("site")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{SiteID: site, Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		return formatRunsList(os.Stdout, runs)
	},
}

// -- runs show --

// runDetail is the JSON shape printed by runs show.
type runDetail struct {
	Analysis *model.AnalysisResult `json:"analysis"`
	Lead     *model.LeadScore      `json:"lead,omitempty"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full result of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var detail runDetail
		detail.Analysis, err = st.GetAnalysis(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		detail.Lead, err = st.GetLeadScore(ctx, args[0])
		if err != nil && !eris.Is(err, store.ErrNotFound) {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		return formatRunStats(os.Stdout, snap)
	},
}

func init() {
	runsListCmd.Flags().String("site", "", "filter by site id")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsStatsCmd.Flags().Int("hours", 24, "lookback window in hours")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a table of runs to w.
func formatRunsList(w io.Writer, runs []model.RunSummary) error {
	data := pterm.TableData{{"ID", "SITE", "SCORE", "GRADE", "LEAD", "COST", "COMPLETED"}}
	for _, r := range runs {
		site := r.RootURL
		if len(site) > 40 {
			site = site[:37] + "..."
		}
		grade := r.Grade
		if r.Incomplete {
			grade += "*"
		}
		lead := "-"
		if r.Tier != "" {
			lead = fmt.Sprintf("%s %.0f", r.Tier, r.Priority)
		}
		data = append(data, []string{
			truncateID(r.RunID),
			site,
			fmt.Sprintf("%.1f", r.OverallScore),
			grade,
			lead,
			fmt.Sprintf("$%.3f", r.TotalCostUSD),
			r.CompletedAt.Format("2006-01-02 15:04"),
		})
	}
	return renderTable(w, data)
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(w io.Writer, s *monitoring.MetricsSnapshot) error {
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Window", fmt.Sprintf("%dh", s.LookbackHours)},
		{"Runs", fmt.Sprintf("%d", s.RunsTotal)},
		{"Incomplete", fmt.Sprintf("%d (%.1f%%)", s.RunsIncomplete, s.IncompleteRate*100)},
		{"Avg score", fmt.Sprintf("%.1f", s.AvgScore)},
		{"Total cost", fmt.Sprintf("$%.2f", s.CostUSD)},
		{"Avg cost", fmt.Sprintf("$%.3f", s.AvgCostUSD)},
	}

	grades := make([]string, 0, len(s.Grades))
	for g := range s.Grades {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	for _, g := range grades {
		data = append(data, []string{"Grade " + g, fmt.Sprintf("%d", s.Grades[g])})
	}
	for _, t := range []model.Tier{model.TierHot, model.TierWarm, model.TierCold} {
		if n := s.Tiers[t]; n > 0 {
			data = append(data, []string{"Lead " + string(t), fmt.Sprintf("%d", n)})
		}
	}
	return renderTable(w, data)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
