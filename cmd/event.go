package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/frahmantamala/tenant-auth/internal/activity"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish activity events through the event bus, for checking that the activity store is wired.`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish an activity event",
	Long:  `Record an activity entry through the bus; the subscribed store writes it to activity_logs.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishActivityEvent(activity.EventType(args[0]))
	},
}

var (
	eventData      string
	eventUserID    int64
	eventCompanyID int64
)

func publishActivityEvent(eventType activity.EventType) {
	deps, err := initializeDependencies(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	entry := activity.Entry{
		UserID:    eventUserID,
		EventType: eventType,
		Metadata: map[string]interface{}{
			"message": eventData,
			"source":  "cli-command",
		},
	}
	if eventCompanyID > 0 {
		entry.CompanyID = &eventCompanyID
	}

	deps.Logger.Info("publishing activity event", "event_type", eventType, "user_id", eventUserID)

	if err := deps.Recorder.Record(context.Background(), entry); err != nil {
		deps.Logger.Error("failed to publish event", "error", err)
		return
	}

	deps.Bus.Wait()
	deps.Logger.Info("activity event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")
	publishEventCmd.Flags().Int64Var(&eventUserID, "user-id", 0, "user the entry belongs to")
	publishEventCmd.Flags().Int64Var(&eventCompanyID, "company-id", 0, "company the entry belongs to")
	_ = publishEventCmd.MarkFlagRequired("user-id")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
