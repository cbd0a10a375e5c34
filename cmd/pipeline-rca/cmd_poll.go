package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miradorstack/pipeline-rca/internal/format"
	"github.com/miradorstack/pipeline-rca/internal/models"
)

var pollOnce bool

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll Jenkins and print the notifications raised",
	RunE:  runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "poll a single time, reporting the current state of every job")
}

func runPoll(cmd *cobra.Command, _ []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.cfg.Jenkins.BaseURL == "" {
		return errors.New("jenkins.baseURL is required (set JENKINS_URL)")
	}

	out := cmd.OutOrStdout()
	if pollOnce {
		created, err := a.monitor(true).PollOnce(cmd.Context())
		if err != nil {
			return err
		}
		a.logger.Info("poll complete", slog.Int("notifications", created))
		list := a.svc.ListNotifications(cmd.Context(), models.NotificationFilters{})
		return emit(out, list, func(m format.Mode) string { return format.Notifications(list.Notifications, m) })
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	unsubscribe := a.svc.Notifications().Subscribe(func(n models.Notification) error {
		return emit(out, n, func(m format.Mode) string { return format.Notifications([]models.Notification{n}, m) })
	})
	defer unsubscribe()
	return a.monitor(false).Run(ctx)
}
