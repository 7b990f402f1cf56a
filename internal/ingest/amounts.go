package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

var poundAmountRegex = regexp.MustCompile(`£\s*([\d,]+(?:\.\d+)?)`)

// ParseAmountRange extracts a grant award range from free text. UK funders
// almost always quote sterling, so only £-prefixed tokens count; a bare
// number is more often a year or a charity registration number than money.
//
// One token yields (v, v); two or more yield the lowest and highest of the
// first two; no token yields (nil, nil).
func ParseAmountRange(text string) (*float64, *float64) {
	matches := poundAmountRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	var amounts []float64
	for _, m := range matches {
		clean := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil || v <= 0 {
			continue
		}
		amounts = append(amounts, v)
		if len(amounts) == 2 {
			break
		}
	}

	switch len(amounts) {
	case 0:
		return nil, nil
	case 1:
		v := amounts[0]
		return &v, &v
	default:
		lo, hi := amounts[0], amounts[1]
		if hi < lo {
			lo, hi = hi, lo
		}
		return &lo, &hi
	}
}
