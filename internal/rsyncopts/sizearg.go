package rsyncopts

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// rsync/options.c:parse_size_arg
var sizeArgRe = regexp.MustCompile(`(?i)^(\d*\.?\d*)([kmgb](?:i?b)?)?([+-]1)?$`)

var sizeSuffixes = map[string]int64{
	"b":   1,
	"bb":  1,
	"bib": 1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"k":   1024,
	"kib": 1024,
	"m":   1024 * 1024,
	"mib": 1024 * 1024,
	"g":   1024 * 1024 * 1024,
	"gib": 1024 * 1024 * 1024,
}

// ParseSize parses a size argument such as "10", "2.13gb" or "100K+1".
// defaultSuffix names the unit assumed when the argument carries none
// ("b" for --max-size/--min-size, "K" for --bwlimit).
func ParseSize(arg, defaultSuffix string) (int64, error) {
	m := sizeArgRe.FindStringSubmatch(arg)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q", arg)
	}
	mantissa, suffix, adjust := m[1], strings.ToLower(m[2]), m[3]
	if mantissa == "" || mantissa == "." {
		return 0, fmt.Errorf("invalid size %q: no digits", arg)
	}
	if suffix == "" {
		suffix = strings.ToLower(defaultSuffix)
	}
	mult, ok := sizeSuffixes[suffix]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown suffix %q", arg, suffix)
	}

	// Multiply the mantissa digits before dividing out the fractional
	// scale so that e.g. "2.13gb" yields exactly 2130000000.
	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	digits := intPart + fracPart
	val, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %v", arg, err)
	}
	if mult > 0 && val > math.MaxInt64/mult {
		return 0, fmt.Errorf("size %q too large", arg)
	}
	val *= mult
	for range fracPart {
		val /= 10
	}

	switch adjust {
	case "+1":
		val++
	case "-1":
		val--
	}
	return val, nil
}
