package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shepherd/internal/reminder"
	"github.com/dukerupert/shepherd/internal/store"
	"github.com/dukerupert/shepherd/internal/telegram"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Send the daily follow-up reminder to Telegram",
	Long: `Run until interrupted, sending one reminder a day once reminder.time
(local to the configured timezone) has passed. Delivered reminders are
recorded in the SQLite database so restarts do not resend them.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().Bool("once", false, "Send the reminder now and exit")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	tg := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID)
	if !tg.Configured() {
		return fmt.Errorf("telegram is not configured: set telegram.bot_token and telegram.chat_id")
	}

	db, err := a.database()
	if err != nil {
		return err
	}

	sched, err := reminder.NewScheduler(a.engine, tg, store.NewReminderLog(db), a.cfg.Reminder.Time,
		reminder.WithLocation(a.location),
		reminder.WithLogger(a.logger.With("component", "reminder")),
	)
	if err != nil {
		return err
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		return sched.SendNow(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("reminder daemon started", "time", a.cfg.Reminder.Time, "timezone", a.cfg.Timezone)
	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	return nil
}
