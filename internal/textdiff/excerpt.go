package textdiff

// Excerpt returns the text of segments[index] framed by up to radius runes of
// unchanged context on each side, clipped to the bounds of the surrounding
// text. It exists purely for display economy: the segment classification is
// never altered. Unchanged segments are returned as-is, and an out-of-range
// index yields an empty string.
func Excerpt(segments []Segment, index int, radius int) string {
	if index < 0 || index >= len(segments) {
		return ""
	}

	target := segments[index]
	if target.Op == Equal || radius <= 0 {
		return target.Text
	}

	var prefix, suffix string
	if index > 0 && segments[index-1].Op == Equal {
		prefix = tailRunes(segments[index-1].Text, radius)
	}
	if index+1 < len(segments) && segments[index+1].Op == Equal {
		suffix = headRunes(segments[index+1].Text, radius)
	}

	return prefix + target.Text + suffix
}

func tailRunes(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[len(runes)-n:])
}

func headRunes(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
