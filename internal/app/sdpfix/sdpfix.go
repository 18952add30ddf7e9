// Package sdpfix repairs session descriptions before they reach the media engine.
// Every transform is pure and idempotent.
package sdpfix

import "strings"

const (
	bundlePrefix = "a=group:BUNDLE"
	midPrefix    = "a=mid:"
	mediaPrefix  = "m="
	setupActive  = "a=setup:active"
	setupPassive = "a=setup:passive"
)

// EnsureBundle inserts a BUNDLE group listing every media identifier, in
// discovery order, right before the first media section. Descriptions that
// already carry a BUNDLE group or have fewer than two identifiers pass through.
func EnsureBundle(desc string) string {
	eol := lineEnding(desc)
	lines := strings.Split(desc, eol)

	var mids []string
	firstMedia := -1
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, bundlePrefix):
			return desc
		case strings.HasPrefix(line, midPrefix):
			if mid := strings.TrimSpace(strings.TrimPrefix(line, midPrefix)); mid != "" {
				mids = append(mids, mid)
			}
		case firstMedia < 0 && strings.HasPrefix(line, mediaPrefix):
			firstMedia = i
		}
	}
	if len(mids) < 2 || firstMedia < 0 {
		return desc
	}

	group := bundlePrefix + " " + strings.Join(mids, " ")
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:firstMedia]...)
	out = append(out, group)
	out = append(out, lines[firstMedia:]...)
	return strings.Join(out, eol)
}

// ForcePassiveSetup rewrites the active DTLS role marker to passive.
func ForcePassiveSetup(desc string) string {
	return strings.ReplaceAll(desc, setupActive, setupPassive)
}

// HasBundle reports whether desc already groups its media lines.
func HasBundle(desc string) bool {
	return strings.Contains(desc, bundlePrefix)
}

func lineEnding(desc string) string {
	if strings.Contains(desc, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
