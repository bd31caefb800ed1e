package rsyncopts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type poptOption struct {
	longName  string
	aliases   []string // extra spellings; single-letter aliases also work in bundles
	shortName string
	negate    bool // a --no-<name> form exists
	increment bool // each occurrence adds one
	argInfo   int
	arg       any        // *int, *string or *int64, depending on argInfo
	set       setterFunc // manual override; nil means the generic setter
}

// A setterFunc applies one occurrence of an option. value is empty for
// options that take no argument.
type setterFunc func(pc *Context, opt *poptOption, negated bool, value string) error

func (o *poptOption) name() string {
	if o.longName == "" {
		return "-" + o.shortName
	}
	return "--" + o.longName
}

// see popt(3)
const (
	POPT_ARG_NONE   = iota // int; No argument expected
	POPT_ARG_STRING        // char*; No type checking to be performed
	POPT_ARG_INT           // int; An integer argument is expected
	POPT_ARG_SIZE          // int64; a size with an optional k/m/g suffix
)

type PoptError struct {
	Errno int32
	Err   error
}

func (pe *PoptError) Unwrap() error { return pe.Err }

func (pe *PoptError) Error() string { return pe.Err.Error() }

// TODO(later): turn these into sentinel error values
// which stringify like poptStrerror()
const (
	POPT_ERROR_NOARG        = -10 // missing argument
	POPT_ERROR_BADOPT       = -11 // unknown option
	POPT_ERROR_UNWANTEDARG  = -12 // option does not take an argument
	POPT_ERROR_BADNUMBER    = -17 // invalid numeric value
	POPT_ERROR_OVERFLOW     = -18 // number too large or too small
	POPT_ERROR_BADOPERATION = -19 // mutually exclusive logical operations requested
)

func poptError(errno int32, format string, a ...interface{}) *PoptError {
	return &PoptError{
		Errno: errno,
		Err:   fmt.Errorf(format, a...),
	}
}

type Context struct {
	// state
	table []poptOption
	args  []string

	// output
	Options       *Options
	RemainingArgs []string
}

// normalizeName makes hyphens and underscores interchangeable.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func (pc *Context) findLong(name string) *poptOption {
	name = normalizeName(name)
	for idx := range pc.table {
		opt := &pc.table[idx]
		if normalizeName(opt.longName) == name {
			return opt
		}
		for _, alias := range opt.aliases {
			if normalizeName(alias) == name {
				return opt
			}
		}
		if opt.shortName != "" && opt.shortName == name {
			return opt
		}
	}
	return nil
}

func (pc *Context) findShort(short string) *poptOption {
	for idx := range pc.table {
		opt := &pc.table[idx]
		if opt.shortName == short {
			return opt
		}
		for _, alias := range opt.aliases {
			if alias == short {
				return opt
			}
		}
	}
	return nil
}

func (pc *Context) apply(opt *poptOption, negated bool, value string) error {
	if opt.set != nil {
		return opt.set(pc, opt, negated, value)
	}
	switch opt.argInfo {
	case POPT_ARG_NONE:
		intPtr := opt.arg.(*int)
		switch {
		case negated:
			*intPtr = 0
		case opt.increment:
			*intPtr++
		default:
			*intPtr = 1
		}

	case POPT_ARG_STRING:
		stringPtr := opt.arg.(*string)
		if negated {
			*stringPtr = ""
		} else {
			*stringPtr = value
		}

	case POPT_ARG_INT:
		intPtr := opt.arg.(*int)
		if negated {
			*intPtr = 0
			return nil
		}
		i, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return poptError(POPT_ERROR_BADNUMBER, "invalid numeric value %q for option %s", value, opt.name())
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return poptError(POPT_ERROR_OVERFLOW, "value %q for option %s out of range", value, opt.name())
		}
		*intPtr = int(i)

	case POPT_ARG_SIZE:
		sizePtr := opt.arg.(*int64)
		if negated {
			*sizePtr = 0
			return nil
		}
		size, err := ParseSize(value, "b")
		if err != nil {
			return poptError(POPT_ERROR_BADNUMBER, "invalid size value %q for option %s: %v", value, opt.name(), err)
		}
		*sizePtr = size

	default:
		return poptError(POPT_ERROR_BADOPERATION, "unhandled argInfo %d for option %s", opt.argInfo, opt.name())
	}
	return nil
}

// takesValue reports whether the option consumes an argument.
func (o *poptOption) takesValue() bool { return o.argInfo != POPT_ARG_NONE }

func (pc *Context) parseArgs() error {
	args := pc.args
	i := 0
	for i < len(args) {
		arg := args[i]
		i++

		if arg == "--" {
			pc.RemainingArgs = append(pc.RemainingArgs, args[i:]...)
			break
		}

		if len(arg) < 2 || arg[0] != '-' {
			pc.RemainingArgs = append(pc.RemainingArgs, arg)
			continue
		}

		if len(pc.RemainingArgs) > 0 {
			return poptError(POPT_ERROR_BADOPT,
				"non-option %q may not precede option %q", pc.RemainingArgs[len(pc.RemainingArgs)-1], arg)
		}

		if strings.HasPrefix(arg, "--") {
			name, value, hasValue := strings.Cut(arg[2:], "=")
			negated := false
			opt := pc.findLong(name)
			if opt == nil {
				if base, ok := strings.CutPrefix(normalizeName(name), "no_"); ok {
					if cand := pc.findLong(base); cand != nil && cand.negate {
						opt = cand
						negated = true
					}
				}
			}
			if opt == nil {
				return poptError(POPT_ERROR_BADOPT, "unknown option --%s", name)
			}
			if !opt.takesValue() {
				if hasValue {
					return poptError(POPT_ERROR_UNWANTEDARG, "option %s does not take an argument", opt.name())
				}
			} else if !hasValue && !negated {
				if i >= len(args) || strings.HasPrefix(args[i], "-") {
					return poptError(POPT_ERROR_NOARG, "missing argument for option %s", opt.name())
				}
				value = args[i]
				i++
			}
			if err := pc.apply(opt, negated, value); err != nil {
				return err
			}
			continue
		}

		// bundled short options
		rest := arg[1:]
		for rest != "" {
			short := rest[:1]
			rest = rest[1:]
			opt := pc.findShort(short)
			if opt == nil {
				return poptError(POPT_ERROR_BADOPT, "unknown option -%s", short)
			}
			if !opt.takesValue() {
				if err := pc.apply(opt, false, ""); err != nil {
					return err
				}
				continue
			}
			// A value-taking short option swallows the rest of the
			// bundle, or the next argv element if the bundle is empty.
			value := rest
			rest = ""
			if value == "" {
				if i >= len(args) {
					return poptError(POPT_ERROR_NOARG, "missing argument for option %s", opt.name())
				}
				value = args[i]
				i++
			}
			if err := pc.apply(opt, false, value); err != nil {
				return err
			}
		}
	}

	if len(pc.RemainingArgs) > 2 {
		return poptError(POPT_ERROR_BADOPT,
			"at most two positional arguments accepted, got %q", pc.RemainingArgs)
	}
	if len(pc.RemainingArgs) > 0 {
		pc.Options.source = pc.RemainingArgs[0]
	}
	if len(pc.RemainingArgs) > 1 {
		pc.Options.dest = pc.RemainingArgs[1]
	}
	return nil
}
