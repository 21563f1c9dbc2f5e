package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return colorSuccess(status)
	case "error", "fail", "failed":
		return colorError(status)
	default:
		return status
	}
}

// gradeColor picks a color func for a letter grade, green for the A/B
// range, yellow for C, red for D/F.
func gradeColor(grade string) func(a ...interface{}) string {
	if len(grade) == 0 {
		return colorInfo
	}
	switch grade[0] {
	case 'A', 'B':
		return colorSuccess
	case 'C':
		return colorWarn
	default:
		return colorError
	}
}
