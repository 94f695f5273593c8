// Package factsheet repairs the run-together text of an eHRMS employee fact
// sheet into numbered (field, value) records.
//
// The portal renders the report inside a modal dialog whose text comes out
// of the browser as one blob where numbered anchors ("1. Name", "2. eHRMS
// Code", ...) repeat, misfire, or bleed label text into the following value.
// Reconstruct recovers the records; the views in render.go turn them into
// the user-facing pretty text and structured mapping.
package factsheet

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// RawTextLabel labels the single record returned when no anchor is found.
const RawTextLabel = "Raw Text"

// Record is one repaired field of a fact sheet.
type Record struct {
	// Number is nil only for the degradation record.
	Number *int   `json:"number"`
	Label  string `json:"label"`
	Value  string `json:"value"`
}

// Numbered reports whether the record carries a field number.
func (r Record) Numbered() bool {
	return r.Number != nil
}

// Degraded reports whether records is the single no-structure fallback.
func Degraded(records []Record) bool {
	return len(records) == 1 && !records[0].Numbered() && records[0].Label == RawTextLabel
}

// anchorPattern matches "<1-2 digits>. <label> " with the shortest label
// that does not start with an ASCII digit. The number may use any decimal
// digit script ("१.", "１.").
var anchorPattern = regexp.MustCompile(`(\p{Nd}{1,2})\.\s+([^0-9][^0-9]*?)\s`)

// anchor is one numbered field marker found in the normalized text.
type anchor struct {
	digits string
	number int
	label  string
	start  int
	end    int
}

// run is a maximal stretch of adjacent anchors with the same digits.
type run struct {
	first anchor
	last  anchor
}

// Normalize collapses every whitespace run to a single space and trims the
// ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Reconstruct rebuilds the ordered field records from one raw report text.
// It never fails: text without any anchor yields a single unnumbered
// RawTextLabel record holding the normalized text.
//
// Records are sorted by number. Runs that share a number but are not
// adjacent are kept as separate records, in detection order.
func Reconstruct(raw string) []Record {
	joined := Normalize(raw)

	anchors := findAnchors(joined)
	if len(anchors) == 0 {
		return []Record{{Label: RawTextLabel, Value: joined}}
	}

	runs := groupRuns(anchors)
	records := make([]Record, 0, len(runs))
	for i, r := range runs {
		end := len(joined)
		if i+1 < len(runs) {
			end = runs[i+1].first.start
		}

		number := r.last.number
		label, ok := CanonicalLabel(number)
		if !ok {
			label = Normalize(r.last.label)
		}

		records = append(records, Record{
			Number: &number,
			Label:  label,
			Value:  stripLabelPrefix(Normalize(joined[r.last.end:end]), label),
		})
	}

	slices.SortStableFunc(records, func(a, b Record) int {
		return *a.Number - *b.Number
	})
	return records
}

func findAnchors(joined string) []anchor {
	matches := anchorPattern.FindAllStringSubmatchIndex(joined, -1)
	anchors := make([]anchor, 0, len(matches))
	for _, m := range matches {
		digits := joined[m[2]:m[3]]
		number, err := strconv.Atoi(asciiDigits(digits))
		if err != nil {
			continue
		}
		anchors = append(anchors, anchor{
			digits: digits,
			number: number,
			label:  joined[m[4]:m[5]],
			start:  m[0],
			end:    m[1],
		})
	}
	return anchors
}

// asciiDigits rewrites decimal digits of any script to ASCII.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= '9' {
			return r
		}
		return '0' + digitValue(r)
	}, s)
}

// digitValue returns the value of a decimal digit rune. Decimal digits are
// encoded in contiguous 0-9 sequences, so the value is the offset from the
// start of the surrounding block modulo ten.
func digitValue(r rune) rune {
	start := r
	for unicode.Is(unicode.Nd, start-1) {
		start--
	}
	return (r - start) % 10
}

// groupRuns folds adjacent anchors with identical digit text into runs. The
// last anchor of a run carries the label and marks where the value starts.
func groupRuns(anchors []anchor) []run {
	var runs []run
	for i := 0; i < len(anchors); {
		j := i
		for j+1 < len(anchors) && anchors[j+1].digits == anchors[i].digits {
			j++
		}
		runs = append(runs, run{first: anchors[i], last: anchors[j]})
		i = j + 1
	}
	return runs
}

// stripLabelPrefix removes leading echoes of label from value until nothing
// more can be removed: first a whole copy of the label, otherwise a single
// leading word that is one of the label's words.
func stripLabelPrefix(value, label string) string {
	v := Normalize(value)
	lbl := Normalize(label)

	words := make(map[string]struct{})
	for _, w := range strings.Fields(lbl) {
		words[w] = struct{}{}
	}

	for v != "" {
		if rest, ok := strings.CutPrefix(v, lbl+" "); ok {
			v = strings.TrimLeft(rest, " ")
			continue
		}
		head, rest, _ := strings.Cut(v, " ")
		if _, ok := words[head]; !ok {
			break
		}
		v = rest
	}
	return v
}
