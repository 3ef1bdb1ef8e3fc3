package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"agendacal/internal/model"
	"agendacal/internal/pipeline"
)

type showOptions struct {
	expanded bool
	reload   bool
	json     bool
}

func newShowCommand(root *rootOptions) *cobra.Command {
	opts := &showOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Run one cycle and print the agenda",
		Example: `
agendacal show
agendacal show --expanded
agendacal show --json --reload
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := newEngine(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			days := engine.Days(cmd.Context(), pipeline.Options{
				Expanded: opts.expanded,
				Reload:   opts.reload,
			})
			if opts.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(days)
			}
			printDays(color.Output, days)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.expanded, "expanded", false, "Show the full range without compact limits")
	cmd.Flags().BoolVar(&opts.reload, "reload", false, "Treat the run as a manual reload (short cache TTL)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print day buckets as JSON")
	return cmd
}

// printDays renders one table per day.
func printDays(w io.Writer, days []model.DayBucket) {
	title := color.New(color.Bold, color.Underline)
	today := color.New(color.Bold, color.FgHiYellow, color.Underline)
	faint := color.New(color.Faint, color.Italic)
	label := color.New(color.FgCyan)

	if len(days) == 0 {
		_, _ = faint.Fprintln(w, " nothing to show")
		return
	}

	for _, d := range days {
		heading := fmt.Sprintf("%s %d %s", d.Weekday, d.DayOfMonth, d.MonthName)
		if d.WeekNumber != nil && d.FirstOfWeek {
			heading += fmt.Sprintf("  (week %d)", *d.WeekNumber)
		}
		if d.Today {
			_, _ = today.Fprintln(w, heading)
		} else {
			_, _ = title.Fprintln(w, heading)
		}

		tbl := uitable.New()
		tbl.Separator = "  "
		tbl.MaxColWidth = 60
		for _, e := range d.Events {
			if e.EmptyDay {
				tbl.AddRow("", faint.Sprint(e.Summary))
				continue
			}
			when := ""
			if e.ShowTime {
				when = e.TimeText
			}
			summary := e.Summary
			if e.ShowLocation && e.LocationText != "" {
				summary += faint.Sprintf(" @ %s", e.LocationText)
			}
			tbl.AddRow(when, summary, label.Sprint(e.Label))
		}
		_, _ = fmt.Fprintln(w, tbl)
		_, _ = fmt.Fprintln(w)
	}
}
