package otu

import (
	"regexp"
	"strconv"
	"strings"
)

var digitRunPattern = regexp.MustCompile(`([0-9]+)`)

// naturalSortKey splits a string into alternating text/number chunks so that
// numeric runs compare numerically instead of lexicographically: "RNA 1",
// "RNA 3", "RNA 10" sort in that order rather than "RNA 1", "RNA 10", "RNA 3"
// (spec §8, testable property 8).
type naturalSortKey struct {
	parts []naturalSortPart
}

type naturalSortPart struct {
	isNumber bool
	number   int
	text     string
}

func newNaturalSortKey(s string) naturalSortKey {
	chunks := digitRunPattern.Split(s, -1)
	nums := digitRunPattern.FindAllString(s, -1)

	var parts []naturalSortPart
	numIdx := 0
	for i, chunk := range chunks {
		if chunk != "" {
			parts = append(parts, naturalSortPart{text: strings.ToLower(chunk)})
		}
		if i < len(nums) {
			n, _ := strconv.Atoi(nums[numIdx])
			parts = append(parts, naturalSortPart{isNumber: true, number: n})
			numIdx++
		}
	}

	return naturalSortKey{parts: parts}
}

// less compares two natural sort keys part by part. A number part sorts
// before a text part at the same position (arbitrary but stable tie-break),
// mirroring Python's mixed-type comparison being avoided entirely by
// comparing same-typed parts first.
func (k naturalSortKey) less(other naturalSortKey) bool {
	for i := 0; i < len(k.parts) && i < len(other.parts); i++ {
		a, b := k.parts[i], other.parts[i]
		if a.isNumber && b.isNumber {
			if a.number != b.number {
				return a.number < b.number
			}
			continue
		}
		if a.isNumber != b.isNumber {
			return a.isNumber
		}
		if a.text != b.text {
			return a.text < b.text
		}
	}
	return len(k.parts) < len(other.parts)
}
