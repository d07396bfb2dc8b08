package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shepherd/internal/followup"
	"github.com/dukerupert/shepherd/internal/model"
)

var generateCmd = &cobra.Command{
	Use:   "generate [YYYY-MM]",
	Short: "Assign this month's (or the given month's) follow-ups",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGenerate,
}

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show follow-ups due today",
	Args:  cobra.NoArgs,
	RunE:  runToday,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the most urgent remaining follow-up",
	Args:  cobra.NoArgs,
	RunE:  runNext,
}

var completeCmd = &cobra.Command{
	Use:   "complete <person name...>",
	Short: "Mark a follow-up as done",
	Long: `Mark this month's follow-up with a person as done. The name is matched
case-insensitively against the assignment. With --id the argument is the
Planning Center person id instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComplete,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [YYYY-MM]",
	Short: "Show a month's progress",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSummary,
}

func init() {
	generateCmd.Flags().Bool("force", false, "Regenerate even if the month exists (discards completions)")
	todayCmd.Flags().Bool("no-overdue", false, "Only show follow-ups assigned for today")
	completeCmd.Flags().String("notes", "", "What was discussed; logged to Notion when configured")
	completeCmd.Flags().Bool("id", false, "Treat the argument as a person id")
}

func monthArg(args []string, today model.Date) (int, time.Month, error) {
	if len(args) == 0 {
		return today.Year(), today.Month(), nil
	}
	return model.ParseMonthKey(args[0])
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	year, month, err := monthArg(args, a.engine.Today())
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	state, err := a.engine.Generate(cmd.Context(), year, month, force)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d follow-ups, theme %q\n", state.Month, len(state.Assignments), state.Theme)
	for _, as := range state.Assignments {
		fmt.Fprintf(out, "  %s  %s (%s)\n", as.AssignedDate, as.PersonName, as.HouseholdName)
	}
	return nil
}

func runToday(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	noOverdue, _ := cmd.Flags().GetBool("no-overdue")
	followups, err := a.engine.TodaysFollowups(cmd.Context(), !noOverdue)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), followup.FormatDigest(followups))
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	next, err := a.engine.NextFollowup(cmd.Context())
	if err != nil {
		return err
	}
	if next == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "All follow-ups for this month are complete.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), followup.FormatReminder(*next))
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	notes, _ := cmd.Flags().GetString("notes")
	byID, _ := cmd.Flags().GetBool("id")
	who := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var done *model.Assignment
	if byID {
		done, err = a.engine.MarkCompleteByID(ctx, who, notes)
	} else {
		done, err = a.engine.MarkComplete(ctx, who, notes)
	}
	if err != nil {
		return err
	}
	if done == nil {
		return fmt.Errorf("%w: %s has no follow-up in %s", followup.ErrNotFound, who, a.engine.Today().MonthKey())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Marked follow-up with %s as complete\n", done.PersonName)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	year, month, err := monthArg(args, a.engine.Today())
	if err != nil {
		return err
	}
	summary, err := a.engine.MonthlySummary(year, month)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), followup.FormatSummary(summary))
	return nil
}
