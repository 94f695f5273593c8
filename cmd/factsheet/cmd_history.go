package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"factsheet/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded scrapes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", store.DefaultListLimit, "Number of scrapes to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Store.Enabled {
		return fmt.Errorf("scrape history is disabled (set store.enabled or FACTSHEET_DB)")
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	renderHistory(cmd.OutOrStdout(), entries)
	return nil
}

func renderHistory(w io.Writer, entries []store.Entry) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Scrape history (%d)", len(entries))))
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no scrapes recorded"))
		return
	}
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "%s  %s  %s / %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.ID, e.Parent, e.Organisation)
		if e.LastField != "" {
			fmt.Fprintf(&b, " [%s]", e.LastField)
		}
		fmt.Fprintf(&b, "  %d fields", e.FieldCount)
		line := b.String()
		if e.Degraded {
			line += " " + warnStyle.Render("(raw text only)")
		}
		fmt.Fprintln(w, line)
	}
}
