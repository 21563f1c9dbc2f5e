package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/hstspreload"
	"github.com/secinto/httpobservatory/internal/retriever"
	"github.com/secinto/httpobservatory/internal/scanner"
)

var scanFormat string

var scanCmd = &cobra.Command{
	Use:   "scan <host>",
	Short: "Scan a site's security headers and print its grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanFormat != "json" && scanFormat != "table" {
			return &UnsupportedFormatError{Format: scanFormat}
		}
		host := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), appCfg.ScanWallClock+5*time.Second)
		defer cancel()

		preload := hstspreload.NewChecker(24 * time.Hour)
		_ = preload.Refresh(ctx) // best-effort; an empty snapshot just means no preloaded-domain bonus this run
		r := retriever.New(retriever.Config{
			MaxRedirects: appCfg.MaxRedirects,
			ProbeTimeout: appCfg.ProbeTimeout,
			WallClock:    appCfg.ScanWallClock,
			BodyCap:      appCfg.BodySizeCapKB * 1024,
		}, preload)
		s := scanner.New(r)

		report, err := s.Scan(ctx, host, nil)
		if err != nil {
			return err
		}

		switch scanFormat {
		case "table":
			printReportTable(host, report)
		default:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(struct {
				Scan grader.ScanReport `json:"scan"`
			}{Scan: report}); err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
		}
		if report.Error != "" {
			return &NetworkFailureError{Kind: report.Error}
		}
		return nil
	},
}

func printReportTable(host string, report grader.ScanReport) {
	grade := "N/A"
	if report.Grade != nil {
		grade = string(*report.Grade)
	}
	score := "N/A"
	if report.Score != nil {
		score = fmt.Sprintf("%d", *report.Score)
	}

	fmt.Printf("%s %s\n", colorInfo("Host:"), host)
	if report.Error != "" {
		fmt.Printf("%s %s\n", colorError("Error:"), report.Error)
		return
	}
	fmt.Printf("%s %s\n", colorInfo("Grade:"), gradeColor(grade)(grade))
	fmt.Printf("%s %s\n", colorInfo("Score:"), score)
	fmt.Printf("%s %d passed / %d failed (of %d)\n", colorInfo("Tests:"), report.TestsPassed, report.TestsFailed, report.TestsQuantity)

	for name, result := range report.Tests {
		status := "fail"
		if result.Pass {
			status = "pass"
		}
		fmt.Printf("  %-40s %s\n", name, formatStatusWithColor(status))
	}
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "json", "output format: json or table")
}
