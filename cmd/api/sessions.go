package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
)

var purgeConfirmed bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect or reset persisted sessions",
	Long: `Maintenance commands for the persisted session state.

Subcommands:
  list    Print one line per stored session
  export  Write the stored sessions as JSON to stdout
  purge   Delete every stored session`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE:  runSessionsList,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored sessions as JSON",
	RunE:  runSessionsExport,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored sessions",
	RunE:  runSessionsPurge,
}

func init() {
	sessionsPurgeCmd.Flags().BoolVar(&purgeConfirmed, "yes", false, "confirm deletion")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
}

// loadStoredSessions 按最近修改时间倒序返回已保存的会话。
func loadStoredSessions(cmd *cobra.Command) ([]chat.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	adapter, err := openAdapter(cmd.Context(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer adapter.Close()

	stored, err := adapter.LoadSessions(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	out := make([]chat.Session, 0, len(stored))
	for _, s := range stored {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified > out[j].LastModified
	})
	return out, nil
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	all, err := loadStoredSessions(cmd)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tMEMORY\tLAST MODIFIED")
	for _, s := range all {
		memory := "no"
		if s.SessionMemory != nil {
			memory = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Title, len(s.History), memory,
			time.UnixMilli(s.LastModified).Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsExport(cmd *cobra.Command, _ []string) error {
	all, err := loadStoredSessions(cmd)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}

func runSessionsPurge(cmd *cobra.Command, _ []string) error {
	if !purgeConfirmed {
		return errors.New("refusing to purge without --yes")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	adapter, err := openAdapter(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	defer adapter.Close()

	if err := adapter.ClearSessions(cmd.Context()); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All sessions deleted.")
	return nil
}
