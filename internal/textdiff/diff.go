// Package textdiff classifies the difference between two text values into
// unchanged, inserted and deleted spans for revision history display.
package textdiff

import "github.com/sergi/go-diff/diffmatchpatch"

// Granularity selects the unit of comparison.
type Granularity int

const (
	// Character aligns rune by rune; used for titles.
	Character Granularity = iota
	// Line aligns whole lines; used for article bodies.
	Line
)

// Op classifies a segment.
type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

// String returns the display name of the operation.
func (op Op) String() string {
	switch op {
	case Insert:
		return "inserted"
	case Delete:
		return "deleted"
	default:
		return "unchanged"
	}
}

// Segment is one classified span of text. Concatenating the Equal and Insert
// segments of a comparison reproduces the after text; Equal and Delete
// reproduce the before text.
type Segment struct {
	Op   Op
	Text string
}

// Compare aligns before and after using a longest-common-subsequence diff
// and returns the classified spans in order. No semantic cleanup is applied,
// so the output is a pure classification: identical inputs always yield a
// single unchanged segment, and identical calls always yield identical
// output.
func Compare(before, after string, granularity Granularity) []Segment {
	dmp := diffmatchpatch.New()

	var diffs []diffmatchpatch.Diff
	switch granularity {
	case Line:
		beforeRunes, afterRunes, lines := dmp.DiffLinesToRunes(before, after)
		diffs = dmp.DiffMainRunes(beforeRunes, afterRunes, false)
		diffs = dmp.DiffCharsToLines(diffs, lines)
	default:
		diffs = dmp.DiffMain(before, after, false)
	}

	segments := make([]Segment, 0, len(diffs))
	for _, diff := range diffs {
		segments = append(segments, Segment{Op: opFor(diff.Type), Text: diff.Text})
	}
	return segments
}

func opFor(operation diffmatchpatch.Operation) Op {
	switch operation {
	case diffmatchpatch.DiffInsert:
		return Insert
	case diffmatchpatch.DiffDelete:
		return Delete
	default:
		return Equal
	}
}
