package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/model"
	"github.com/ayusman/moodlens/internal/store"
)

var historyLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded video sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		sessions, err := st.Sessions().List(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tTOTAL\tSUMMARY")
		fmt.Fprintln(w, "--\t-------\t-----\t-------")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Total, formatCounts(s.Counts))
		}
		return w.Flush()
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List discovered model bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m := model.NewManager(cfg.Models.Dir)
		if err := m.Discover(); err != nil {
			return fmt.Errorf("failed to discover models: %w", err)
		}

		bundles := m.List()
		out := cmd.OutOrStdout()
		if len(bundles) == 0 {
			fmt.Fprintf(out, "No model bundles found in %s.\n", m.ModelDir())
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tVERSION\tLABELS")
		fmt.Fprintln(w, "----\t----\t-------\t------")
		for _, b := range bundles {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Manifest.Name, b.Manifest.Kind, b.Manifest.Version, strings.Join(b.Manifest.Labels, ","))
		}
		return w.Flush()
	},
}

func formatCounts(counts map[string]int) string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = fmt.Sprintf("%s=%d", label, counts[label])
	}
	return strings.Join(parts, " ")
}

func init() {
	sessionsCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum sessions to show")
	rootCmd.AddCommand(sessionsCmd, modelsCmd)
}
