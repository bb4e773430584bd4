package textdiff

import (
	"strings"
	"testing"
)

func TestCompareEqualInputsYieldsSingleUnchangedSegment(t *testing.T) {
	for _, granularity := range []Granularity{Character, Line} {
		segments := Compare("first line\nsecond line\n", "first line\nsecond line\n", granularity)
		if len(segments) != 1 {
			t.Fatalf("granularity %d: expected one segment, got %d", granularity, len(segments))
		}
		if segments[0].Op != Equal {
			t.Fatalf("granularity %d: expected unchanged segment", granularity)
		}
		if segments[0].Text != "first line\nsecond line\n" {
			t.Fatalf("granularity %d: segment must span the whole text", granularity)
		}
	}
}

func TestCompareSingleCharacterDeletion(t *testing.T) {
	segments := Compare("Alpha", "Alpa", Character)

	var deleted []string
	var inserted []string
	for _, segment := range segments {
		switch segment.Op {
		case Delete:
			deleted = append(deleted, segment.Text)
		case Insert:
			inserted = append(inserted, segment.Text)
		}
	}
	if len(deleted) != 1 || len(deleted[0]) != 1 {
		t.Fatalf("expected exactly one deleted segment of length 1, got %#v", deleted)
	}
	if deleted[0] != "h" {
		t.Fatalf("expected deletion of %q, got %q", "h", deleted[0])
	}
	if len(inserted) != 0 {
		t.Fatalf("expected no insertions, got %#v", inserted)
	}
}

func TestCompareRoundTripsBothSides(t *testing.T) {
	before := "The quick brown fox\njumps over the lazy dog\nand runs away\n"
	after := "The quick red fox\njumps over the lazy dog\nand walks away\n"

	for _, granularity := range []Granularity{Character, Line} {
		segments := Compare(before, after, granularity)

		var rebuiltAfter, rebuiltBefore strings.Builder
		for _, segment := range segments {
			if segment.Op != Delete {
				rebuiltAfter.WriteString(segment.Text)
			}
			if segment.Op != Insert {
				rebuiltBefore.WriteString(segment.Text)
			}
		}
		if rebuiltAfter.String() != after {
			t.Fatalf("granularity %d: unchanged+inserted must reconstruct after", granularity)
		}
		if rebuiltBefore.String() != before {
			t.Fatalf("granularity %d: unchanged+deleted must reconstruct before", granularity)
		}
	}
}

func TestCompareLineGranularityKeepsWholeLines(t *testing.T) {
	before := "alpha\nbravo\ncharlie\n"
	after := "alpha\nbrave\ncharlie\n"

	segments := Compare(before, after, Line)
	for _, segment := range segments {
		if segment.Op == Equal {
			continue
		}
		if segment.Text != "bravo\n" && segment.Text != "brave\n" {
			t.Fatalf("changed segment should be a whole line, got %q", segment.Text)
		}
	}
}

func TestCompareIsDeterministic(t *testing.T) {
	before := "one\ntwo\nthree\n"
	after := "one\n2\nthree\nfour\n"

	first := Compare(before, after, Line)
	second := Compare(before, after, Line)
	if len(first) != len(second) {
		t.Fatalf("segment counts differ between runs")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("segment %d differs between runs: %#v vs %#v", i, first[i], second[i])
		}
	}
}

func TestOpStringNames(t *testing.T) {
	if Equal.String() != "unchanged" || Insert.String() != "inserted" || Delete.String() != "deleted" {
		t.Fatalf("unexpected op names: %q %q %q", Equal, Insert, Delete)
	}
}

func TestExcerptFramesChangeWithBoundedContext(t *testing.T) {
	segments := []Segment{
		{Op: Equal, Text: "abcdefghij"},
		{Op: Insert, Text: "XY"},
		{Op: Equal, Text: "klmnopqrst"},
	}

	got := Excerpt(segments, 1, 3)
	if got != "hijXYklm" {
		t.Fatalf("unexpected excerpt %q", got)
	}
}

func TestExcerptClipsAtTextBounds(t *testing.T) {
	segments := []Segment{
		{Op: Equal, Text: "ab"},
		{Op: Delete, Text: "gone"},
	}

	got := Excerpt(segments, 1, 50)
	if got != "abgone" {
		t.Fatalf("excerpt must clip to available context, got %q", got)
	}
}

func TestExcerptIgnoresNeighboringChanges(t *testing.T) {
	segments := []Segment{
		{Op: Delete, Text: "old"},
		{Op: Insert, Text: "new"},
	}

	if got := Excerpt(segments, 1, 10); got != "new" {
		t.Fatalf("only unchanged neighbors provide context, got %q", got)
	}
}

func TestExcerptHandlesMultibyteRunes(t *testing.T) {
	segments := []Segment{
		{Op: Equal, Text: "こんにちは"},
		{Op: Insert, Text: "世界"},
	}

	if got := Excerpt(segments, 1, 2); got != "ちは世界" {
		t.Fatalf("unexpected excerpt %q", got)
	}
}

func TestExcerptOnUnchangedSegmentReturnsText(t *testing.T) {
	segments := []Segment{{Op: Equal, Text: "steady"}}

	if got := Excerpt(segments, 0, 3); got != "steady" {
		t.Fatalf("unexpected excerpt %q", got)
	}
}

func TestExcerptOutOfRangeIndex(t *testing.T) {
	if got := Excerpt(nil, 0, 3); got != "" {
		t.Fatalf("expected empty excerpt, got %q", got)
	}
}
