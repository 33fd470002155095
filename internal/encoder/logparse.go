package encoder

import "strings"

// ParseLogLevel extracts the level from a `-loglevel level+info` ffmpeg
// line. Lines look like "[info] message" or, for component logs,
// "[mov @ 0x...] [warning] message"; the component prefix is preserved.
func ParseLogLevel(line string) (level, msg string) {
	bracket, rest, ok := leadingBracket(line)
	if !ok {
		return "info", line
	}
	if isLogLevel(bracket) {
		return bracket, rest
	}
	// Component prefix, the level may follow in a second bracket.
	if inner, innerRest, ok := leadingBracket(rest); ok && isLogLevel(inner) {
		return inner, "[" + bracket + "] " + innerRest
	}
	return "info", line
}

func leadingBracket(s string) (content, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", "", false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", "", false
	}
	return s[1:end], s[end+2:], true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
