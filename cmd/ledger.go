package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/logging"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect recorded attendance",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show attendance records for a day",
	Long: `Show attendance records for a day, optionally narrowed to a class or a
single session.

Examples:
  # Everything recorded today
  rollcall ledger show

  # One class on a given day
  rollcall ledger show --date 2026-03-02 --department CS --year TE --division A`,
	RunE: runLedgerShow,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)

	ledgerShowCmd.Flags().String("date", "", "Day to show as YYYY-MM-DD (default today)")
	addSessionFlags(ledgerShowCmd)
	ledgerShowCmd.Flags().Bool("json", false, "Output as JSON")
}

// LedgerSession is one session in `ledger show` output
type LedgerSession struct {
	Session ledger.SessionKey `json:"session"`
	Records []ledger.Record   `json:"records"`
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	class, slot := sessionFromFlags(cmd)

	date := mustGetString(cmd, "date")
	if date == "" {
		date = time.Now().Format(ledger.DateLayout)
	}
	if _, err := time.Parse(ledger.DateLayout, date); err != nil {
		return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
	}

	ctx := context.Background()
	cfg := config.Load()

	b := newBackends(cfg, logging.New(cfg.Log))
	defer b.Close()

	l, err := b.ledger(ctx)
	if err != nil {
		return err
	}

	keys, err := l.Sessions(ctx, date)
	if err != nil {
		return err
	}

	var sessions []LedgerSession
	for _, k := range keys {
		if class != nil && !class.Matches(k.Class()) {
			continue
		}
		if slot != "" && k.TimeSlot != slot {
			continue
		}
		records, err := l.Records(ctx, k)
		if err != nil {
			return err
		}
		sessions = append(sessions, LedgerSession{Session: k, Records: records})
	}

	if jsonOutput {
		if sessions == nil {
			sessions = []LedgerSession{}
		}
		return outputJSON(sessions)
	}

	if len(sessions) == 0 {
		fmt.Printf("No attendance recorded on %s\n", date)
		return nil
	}
	for _, s := range sessions {
		k := s.Session
		title := "General attendance"
		if !k.IsGeneral() {
			title = fmt.Sprintf("%s, %s", classLabel(k.Department, k.Year, k.Division), k.TimeSlot)
		}
		fmt.Printf("\n%s on %s (%d present)\n", title, k.Date, len(s.Records))
		fmt.Printf("  %-12s %-30s %-8s %-10s %s\n", "ROLL NO", "NAME", "TIME", "CONFIDENCE", "STATUS")
		for _, r := range s.Records {
			fmt.Printf("  %-12s %-30s %-8s %-10.2f %s\n", r.RollNo, r.Name, r.Timestamp.Local().Format("15:04:05"), r.Confidence, r.Outcome)
		}
	}
	return nil
}
