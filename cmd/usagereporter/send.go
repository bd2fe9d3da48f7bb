package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/goodtune/usagereporter/internal/api"
	"github.com/goodtune/usagereporter/internal/pipeline"
	"github.com/goodtune/usagereporter/internal/report"
	"github.com/spf13/cobra"
)

var (
	sendTest    bool
	sendPreview bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send today's report now",
	Long: `Run the report pipeline immediately, outside the daily schedule. The
outcome is recorded exactly as for a scheduled send.`,
	Example: `  usagereporter send
  usagereporter send --preview
  usagereporter send --test`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendTest, "test", false, "Send the fixed test message instead of the report")
	sendCmd.Flags().BoolVar(&sendPreview, "preview", false, "Print the report without sending it")
	sendCmd.MarkFlagsMutuallyExclusive("test", "preview")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	client := newAPIClient()
	ctx := cmd.Context()

	if sendPreview {
		var preview api.UsageResponse
		if _, err := client.do(ctx, http.MethodGet, "/usage/today", nil, &preview); err != nil {
			return err
		}
		printPreview(preview)
		return nil
	}

	path := "/send"
	if sendTest {
		path = "/send/test"
	}

	var result pipeline.Result
	if _, err := client.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return err
	}
	return printResult(result)
}

func printPreview(preview api.UsageResponse) {
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("[usage]")
	if len(preview.Entries) == 0 {
		fmt.Println("  no usage recorded")
	}
	for _, e := range preview.Entries {
		fmt.Printf("  %-40s %s\n", e.Name, report.FormatMinutes(report.Minutes(e.DurationMillis)))
	}
	if len(preview.Excluded) > 0 {
		_, _ = color.New(color.FgYellow).Printf("  excluded: %v\n", preview.Excluded)
	}

	_, _ = cyan.Println("\n[message]")
	fmt.Println(preview.Message)
}

func printResult(result pipeline.Result) error {
	switch result.Status {
	case pipeline.StatusSent:
		_, _ = color.New(color.FgGreen).Fprintln(os.Stdout, "✅ Message delivered")
		return nil
	case pipeline.StatusSkipped:
		_, _ = color.New(color.FgYellow).Fprintf(os.Stdout, "⏭️  Nothing sent: %s\n", result.Reason)
		return nil
	case pipeline.StatusUnavailable:
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "❌ Usage data unavailable: %s\n", result.Reason)
		return fmt.Errorf("usage data unavailable, enable usage tracking and retry")
	default:
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "❌ Send failed: %s\n", result.Reason)
		return fmt.Errorf("send failed")
	}
}
