package recipe

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// bannerWidth matches the original's assumption of an 80-column terminal.
const bannerWidth = 80

// formatBanner renders a step-start banner the same shape the original
// prints before running a step's body: the step name centred between rules
// of '-', padded out to bannerWidth.
func formatBanner(name string) string {
	label := fmt.Sprintf(" %s ", name)
	pad := bannerWidth - len(label)
	if pad < 2 {
		return label
	}
	left := pad / 2
	right := pad - left
	return strings.Repeat("-", left) + label + strings.Repeat("-", right)
}

// formatElapsed renders a human-readable duration suffix for step-done /
// join banners, e.g. "(3 seconds)".
func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("(%s)", strings.TrimSpace(humanize.RelTime(time.Now().Add(-d), time.Now(), "", "")))
}
