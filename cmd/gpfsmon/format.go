package main

import (
	"fmt"
	"time"

	"github.com/fsops/gpfsmon/internal/ytab"
)

// sizeString formats a byte count into human-readable form.
func sizeString(b int64) string {
	const unit = 1024
	neg := ""
	if b < 0 {
		neg, b = "-", -b
	}
	if b < unit {
		return fmt.Sprintf("%s%d B", neg, b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	return fmt.Sprintf("%s%.1f %s", neg, float64(b)/float64(div), units[exp])
}

// limitString renders a quota limit, where zero means no limit is set.
func limitString(b uint64) string {
	if b == 0 {
		return "-"
	}
	return sizeString(int64(b))
}

// rateString renders a bytes-per-second throughput figure.
func rateString(v float64) string {
	return sizeString(int64(v)) + "/s"
}

// shortDuration formats a duration in at most two units.
func shortDuration(d time.Duration) string {
	if d >= 24*time.Hour {
		return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

// graceString renders a quota grace column: the state name, with the
// time left appended while the clock is running.
func graceString(g ytab.GracePeriod) string {
	if g.State == ytab.GraceRunning && g.Remaining > 0 {
		return fmt.Sprintf("running(%s)", shortDuration(g.Remaining))
	}
	return g.State.String()
}

// timeString formats a unix timestamp for table output.
func timeString(unixTS int64) string {
	return time.Unix(unixTS, 0).Format("2006-01-02 15:04")
}
