package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/fatih/color"
	"github.com/goodtune/usagereporter/internal/api"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change report settings",
	Long: `Show or change the report settings of a running daemon. Every change is
applied immediately and reschedules the daily send.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsRequest(cmd, http.MethodGet, "", nil)
	},
}

var settingsWebhookCmd = &cobra.Command{
	Use:     "webhook URL",
	Short:   "Set the webhook URL (empty string clears it)",
	Example: `  usagereporter settings webhook https://hooks.slack.com/services/T000/B000/XXXX`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsRequest(cmd, http.MethodPut, "/webhook", api.WebhookRequest{URL: args[0]})
	},
}

var settingsEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the daily send",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled := true
		return settingsRequest(cmd, http.MethodPut, "/enabled", api.EnabledRequest{Enabled: &enabled})
	},
}

var settingsDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the daily send",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled := false
		return settingsRequest(cmd, http.MethodPut, "/enabled", api.EnabledRequest{Enabled: &enabled})
	},
}

var settingsTimeCmd = &cobra.Command{
	Use:     "time HH:MM",
	Short:   "Set the local time of the daily send",
	Example: `  usagereporter settings time 21:00`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsRequest(cmd, http.MethodPut, "/time", api.TimeRequest{Time: args[0]})
	},
}

var settingsExcludeCmd = &cobra.Command{
	Use:   "exclude APP_ID...",
	Short: "Leave applications out of the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if err := settingsRequest(cmd, http.MethodPost, "/exclusions/"+url.PathEscape(id), nil); err != nil {
				return err
			}
		}
		return nil
	},
}

var settingsIncludeCmd = &cobra.Command{
	Use:   "include APP_ID...",
	Short: "Include previously excluded applications again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if err := settingsRequest(cmd, http.MethodDelete, "/exclusions/"+url.PathEscape(id), nil); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWebhookCmd)
	settingsCmd.AddCommand(settingsEnableCmd)
	settingsCmd.AddCommand(settingsDisableCmd)
	settingsCmd.AddCommand(settingsTimeCmd)
	settingsCmd.AddCommand(settingsExcludeCmd)
	settingsCmd.AddCommand(settingsIncludeCmd)
	rootCmd.AddCommand(settingsCmd)
}

func settingsRequest(cmd *cobra.Command, method, path string, body any) error {
	var resp api.SettingsResponse
	if _, err := newAPIClient().do(cmd.Context(), method, "/settings"+path, body, &resp); err != nil {
		return err
	}

	_, _ = color.New(color.FgCyan, color.Bold).Println("[settings]")
	printSettingsSummary(resp.SendEnabled, resp.WebhookConfigured, resp.SendTime)
	if len(resp.ExcludedApplicationIDs) == 0 {
		fmt.Println("  excluded = (none)")
	}
	for _, id := range resp.ExcludedApplicationIDs {
		fmt.Printf("  excluded = %s\n", id)
	}
	return nil
}
