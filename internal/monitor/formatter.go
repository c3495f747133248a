package monitor

import (
	"fmt"
	"time"
)

// FormatRate formats a gate rate as "X/Y req per 1m0s".
func FormatRate(inWindow, max int, period time.Duration) string {
	return fmt.Sprintf("%d/%d req per %s", inWindow, max, period)
}

// FormatPercentage formats a percentage value (0-100).
func FormatPercentage(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatScore formats a quality score, or "-" when the document was not
// scored.
func FormatScore(score *int) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%d/100", *score)
}

// FormatMillis formats a step duration in milliseconds as "X.Xs" or "Xms".
func FormatMillis(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// FormatElapsed formats d as "Xh Ym", "Xm Ys" or "Xs".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
