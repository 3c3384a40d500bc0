package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// renderIssueResult displays an issued token
func renderIssueResult(w io.Writer, r IssueResult) {
	headerColor.Fprintf(w, "Token issued for %s\n", r.Scope)
	headerColor.Fprintln(w, strings.Repeat("=", 72))
	printField(w, "Session", r.SessionID)
	printField(w, "Access key", r.AccessKey)
	printField(w, "Name", r.Name)
	printField(w, "Token", r.Token)
	printField(w, "Expires", fmt.Sprintf("%s (%s)", r.ExpiresAt.Format(time.RFC3339), formatTimeUntil(r.ExpiresAt)))
	fmt.Fprintln(w)
	infoColor.Fprintln(w, "Markup:")
	fmt.Fprintln(w, r.Markup)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
}

// formatTimeUntil formats a future time as a short duration
func formatTimeUntil(t time.Time) string {
	d := time.Until(t)
	if d <= 0 {
		return "expired"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("in %ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("in %dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
