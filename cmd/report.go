package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show recorded attendance",
	Long: `Report lists attendance marks for one day (default today) and the
per-day totals. Marks arriving after the lateness cutoff are flagged.`,
	RunE: runReport,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List enrolled users",
	RunE:  runUsers,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(usersCmd)
	reportCmd.Flags().String("day", "", "Day to report (YYYY-MM-DD, default today)")
	reportCmd.Flags().Bool("totals", false, "Show per-day totals instead of individual marks")
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if mustGetBool(cmd, "totals") {
		stats, err := p.store.Stats(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No attendance recorded")
			return nil
		}
		fmt.Printf("%-12s %7s %7s %7s\n", "DAY", "TOTAL", "ON TIME", "LATE")
		for _, d := range stats {
			fmt.Printf("%-12s %7d %7d %7d\n", d.Day, d.Total, d.OnTime, d.Late)
		}
		return nil
	}

	day := mustGetString(cmd, "day")
	if day == "" {
		day = today()
	}

	rows, err := p.store.ListAttendance(ctx, day)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No attendance recorded for %s\n", day)
		return nil
	}

	fmt.Printf("Attendance for %s:\n", day)
	for _, row := range rows {
		status := "on time"
		if row.Late {
			status = "late"
		}
		fmt.Printf("  %s  %-24s %s\n", row.At.Format("15:04:05"), row.UserName, status)
	}
	return nil
}

func runUsers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users enrolled")
		return nil
	}

	for _, u := range users {
		enrolled := ""
		if !p.cache.Has(u.Name) {
			enrolled = "  (no cached samples)"
		}
		fmt.Printf("  %-24s %s%s\n", u.Name, u.DisplayName, enrolled)
	}
	return nil
}
