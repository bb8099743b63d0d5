// Package cli provides status formatting helpers.
package cli

import (
	"fmt"
	"strings"

	"github.com/batchforge/batchforge/internal/models"
)

func formatJobState(state models.JobState) string {
	label, color := statusLabelForJob(state)
	return colorize(formatStatusLabel(label, string(state)), color)
}

func statusLabelForJob(state models.JobState) (string, string) {
	switch state {
	case models.JobStateCompleted:
		return "OK", colorGreen
	case models.JobStateRunning:
		return "BUSY", colorCyan
	case models.JobStatePending, models.JobStateSubmitted, models.JobStateWaiting:
		return "WAIT", colorYellow
	case models.JobStateCancelled:
		return "WARN", colorMagenta
	case models.JobStateFailed:
		return "ERR", colorRed
	default:
		return "WARN", colorYellow
	}
}

func formatStatusLabel(label, status string) string {
	normalized := strings.TrimSpace(status)
	if normalized != "" {
		normalized = strings.ReplaceAll(normalized, "_", " ")
	}
	if normalized == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, normalized)
}
