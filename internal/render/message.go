package render

import (
	"fmt"
	"strings"
)

// MessageNotReady is returned when there is nothing to render into.
const MessageNotReady = "Kunde inte rendera markörer (kartan inte redo)."

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func shownMessage(s Summary, place string) string {
	var parts []string
	if n := s.Shown.Accidents(); n > 0 {
		parts = append(parts, plural(n, "olycka", "olyckor"))
	}
	if n := s.Shown.Roadworks(); n > 0 {
		parts = append(parts, plural(n, "vägarbete", "vägarbeten"))
	}
	if n := s.Shown.Cameras; n > 0 {
		parts = append(parts, plural(n, "fartkamera", "fartkameror"))
	}
	return fmt.Sprintf("Visar %s för %s.", strings.Join(parts, " och "), place)
}

func emptyMessage(s Summary, place string) string {
	var sb strings.Builder
	if s.Hidden.Accidents > 0 {
		fmt.Fprintf(&sb, "%d olyckor dolda. ", s.Hidden.Accidents)
	}
	if s.Hidden.Roadworks > 0 {
		fmt.Fprintf(&sb, "%d vägarbeten dolda. ", s.Hidden.Roadworks)
	}
	if s.Hidden.Cameras > 0 {
		fmt.Fprintf(&sb, "%d fartkameror dolda. ", s.Hidden.Cameras)
	}
	if reason := strings.TrimSpace(sb.String()); reason != "" {
		return reason
	}
	return fmt.Sprintf("Inga aktiva händelser eller valda filter matchar i %s just nu.", place)
}
