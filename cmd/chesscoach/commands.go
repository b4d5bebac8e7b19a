package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/config"
	"github.com/kalambet/chesscoach/internal/session"
	"github.com/kalambet/chesscoach/internal/storage"
	"github.com/kalambet/chesscoach/internal/watch"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Start analysing games played since a date",
	Long: `Start analysing games played since a date and print the run id.

Examples:
  chesscoach analyze --date 2024-03-01
  chesscoach load --wait`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		h, err := e.client.Analyze(cmd.Context(), coach.AnalysisRequest{Date: date})
		if err != nil {
			return err
		}
		if h.RunID == "" {
			return errors.New("service did not return a run id")
		}

		if err := session.NewStoreRecorder(e.store).RecordRun(date, h); err != nil {
			printWarning("run started but not recorded: %v", err)
		}

		fmt.Fprintln(stdout, h.RunID)
		printSuccess("Analysis started")
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("date", "", "analyse games played since this date (YYYY-MM-DD)")
}

// --- load ---

var loadCmd = &cobra.Command{
	Use:   "load [run-id]",
	Short: "Fetch the analysis for a run (default: the latest run)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		files, _ := cmd.Flags().GetBool("files")

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		var runID string
		if len(args) == 1 {
			runID = args[0]
		} else if runID, err = e.latestRunID(); err != nil {
			return err
		}

		var doc coach.Document
		if wait {
			printStep("Waiting for run %s", runID)
			w := watch.NewWatcher(e.store, e.client, e.cfg.WatchInterval(), e.cfg.Watch.MaxAttempts)
			doc, err = w.Wait(cmd.Context(), runID)
		} else {
			doc, err = e.client.Analysis(cmd.Context(), runID)
		}
		if err != nil {
			return err
		}

		if doc.Status >= 400 {
			printWarning("service returned %d", doc.Status)
		} else if !doc.Empty() {
			if err := e.store.MarkRunReady(runID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				slog.Warn("marking run ready", "run_id", runID, "error", err)
			}
		}

		if files {
			if sections, ok := doc.Sections(); ok {
				printSections(sections)
				return nil
			}
			printWarning("analysis is not a set of files; printing raw JSON")
		}
		fmt.Fprintln(stdout, doc.Pretty())
		return nil
	},
}

func printSections(sections map[string]string) {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stdout, colorize(colorBold, "== "+name+" =="))
		fmt.Fprintln(stdout, sections[name])
	}
}

func init() {
	loadCmd.Flags().Bool("wait", false, "poll until the analysis has results")
	loadCmd.Flags().Bool("files", false, "print each analysis file as text instead of raw JSON")
}

// --- schedule ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Register a recurring analysis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		freqStr, _ := cmd.Flags().GetString("frequency")

		freq, err := coach.ParseFrequency(freqStr)
		if err != nil {
			return err
		}

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		st := session.New(e.client, session.NewStoreRecorder(e.store))
		st.SetDraftDate(date)
		st.SetDraftFrequency(freq)

		fmt.Fprintln(stdout, st.SubmitSchedule(cmd.Context()))
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("date", "", "first analysis date (YYYY-MM-DD)")
	scheduleCmd.Flags().String("frequency", string(coach.Daily), "daily or weekly")
}

// --- dashboard ---

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <username>",
	Short: "List the scheduled analyses for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		d, err := e.client.Dashboard(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(d)
		}

		fmt.Fprintln(stdout, colorize(colorBold, d.Username))
		if len(d.ScheduledJobs) == 0 {
			fmt.Fprintln(stdout, "No scheduled analyses.")
			return nil
		}
		for _, j := range d.ScheduledJobs {
			fmt.Fprintf(stdout, "  %s  %-10s  %s\n", colorize(colorCyan, j.ID), j.Frequency, j.Date)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().Bool("json", false, "print the raw dashboard as JSON")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show runs and schedules submitted from this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.store.ListRuns(limit)
		if err != nil {
			return err
		}
		schedules, err := e.store.ListSchedules(limit)
		if err != nil {
			return err
		}

		fmt.Fprintln(stdout, colorize(colorBold, "Runs"))
		if len(runs) == 0 {
			fmt.Fprintln(stdout, "  none")
		}
		for _, r := range runs {
			date := r.Date
			if date == "" {
				date = "-"
			}
			fmt.Fprintf(stdout, "  %s  %-10s  %s  %s\n",
				colorize(colorCyan, r.RunID),
				date,
				colorize(statusColor(r.Status), r.Status),
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
			)
		}

		fmt.Fprintln(stdout, colorize(colorBold, "Schedules"))
		if len(schedules) == 0 {
			fmt.Fprintln(stdout, "  none")
		}
		for _, s := range schedules {
			code := "no response"
			if s.StatusCode != 0 {
				code = fmt.Sprintf("HTTP %d", s.StatusCode)
			}
			fmt.Fprintf(stdout, "  %s  %-6s  %s  %s\n",
				s.SubmittedAt.Local().Format("2006-01-02 15:04"),
				s.Frequency,
				s.Date,
				code,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries per section")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			source := k.EnvVar
			if k.FromEnv {
				source = "from " + k.EnvVar
			}
			fmt.Fprintf(stdout, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, source)
		}
		fmt.Fprintf(stdout, "  file: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := config.SetKey(args[0], args[1])
		if err != nil {
			return err
		}
		reportKey(info)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := config.UnsetKey(args[0])
		if err != nil {
			return err
		}
		reportKey(info)
		return nil
	},
}

func reportKey(info config.KeyInfo) {
	fmt.Fprintf(stdout, "%s = %s\n", info.Key, info.Value)
	if info.FromEnv {
		printWarning("%s is set and overrides the config file", info.EnvVar)
		return
	}
	printSuccess("Saved to %s", config.ConfigFilePath())
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
