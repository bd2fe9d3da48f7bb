package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/usagereporter/internal/api"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last send outcome and the next scheduled send",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status api.StatusResponse
	if _, err := newAPIClient().do(cmd.Context(), http.MethodGet, "/status", nil, &status); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("[last send]")
	switch status.Outcome.Status {
	case storage.StatusSuccess:
		_, _ = color.New(color.FgGreen).Printf("  status = %s\n", status.Outcome.Status)
	case storage.StatusFailed:
		_, _ = color.New(color.FgRed, color.Bold).Printf("  status = %s\n", status.Outcome.Status)
		fmt.Printf("  error = %s\n", status.Outcome.ErrorMessage)
	default:
		fmt.Printf("  status = %s\n", status.Outcome.Status)
	}
	if status.Outcome.LastSentAt != nil {
		fmt.Printf("  last_sent_at = %s\n", status.Outcome.LastSentAt.Local().Format(time.RFC1123))
	}

	_, _ = cyan.Println("\n[schedule]")
	printSettingsSummary(status.SendEnabled, status.WebhookConfigured, status.SendTime)
	if status.NextFire != nil {
		fmt.Printf("  next_fire = %s\n", status.NextFire.Local().Format(time.RFC1123))
	} else {
		fmt.Println("  next_fire = (not scheduled)")
	}

	return nil
}

func printSettingsSummary(enabled, webhookConfigured bool, sendTime string) {
	onOff := color.New(color.FgRed).Sprint("disabled")
	if enabled {
		onOff = color.New(color.FgGreen).Sprint("enabled")
	}
	fmt.Printf("  send = %s\n", onOff)

	configured := color.New(color.FgYellow).Sprint("not configured")
	if webhookConfigured {
		configured = color.New(color.FgGreen).Sprint("configured")
	}
	fmt.Printf("  webhook = %s\n", configured)
	fmt.Printf("  send_time = %s\n", sendTime)
}
