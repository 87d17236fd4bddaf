package jschallenge

import (
	"encoding/base64"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

type nativeFunc func(r *run, this value, args []value) (value, error)

func native(name string, fn nativeFunc) *function {
	return &function{name: name, native: fn}
}

func arg(args []value, i int) value {
	if i < len(args) {
		return args[i]
	}
	return undefined
}

// toInteger implements ToIntegerOrInfinity.
func toInteger(v value) float64 {
	n := toNumber(v)
	if math.IsNaN(n) {
		return 0
	}
	return math.Trunc(n)
}

// clampIndex converts a relative position into [0, length].
func clampIndex(pos float64, length int) int {
	if pos < 0 {
		pos += float64(length)
		if pos < 0 {
			return 0
		}
	}
	if pos > float64(length) {
		return length
	}
	return int(pos)
}

func jsMod(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || b == 0 {
		return math.NaN()
	}
	if math.IsInf(b, 0) {
		return a
	}
	return math.Mod(a, b)
}

// newGlobalScope builds the global object.  It is rebuilt for every Eval so
// that scripts cannot leave state behind for the next caller.
func newGlobalScope() *scope {
	sc := newScope(nil)
	sc.vars["undefined"] = undefined
	sc.vars["NaN"] = math.NaN()
	sc.vars["Infinity"] = math.Inf(1)
	sc.vars["Math"] = mathObject()

	str := native("String", func(_ *run, _ value, args []value) (value, error) {
		if len(args) == 0 {
			return "", nil
		}
		return toString(args[0]), nil
	})
	str.props = newObject()
	str.props.set("fromCharCode", native("fromCharCode", func(_ *run, _ value, args []value) (value, error) {
		units := make([]uint16, len(args))
		for i, a := range args {
			units[i] = toUint16(toNumber(a))
		}
		return fromUnits(units), nil
	}))
	sc.vars["String"] = str

	sc.vars["Number"] = native("Number", func(_ *run, _ value, args []value) (value, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		return toNumber(args[0]), nil
	})
	sc.vars["Boolean"] = native("Boolean", func(_ *run, _ value, args []value) (value, error) {
		return toBoolean(arg(args, 0)), nil
	})
	sc.vars["parseInt"] = native("parseInt", func(_ *run, _ value, args []value) (value, error) {
		return parseInt(toString(arg(args, 0)), int(toInteger(arg(args, 1)))), nil
	})
	sc.vars["parseFloat"] = native("parseFloat", func(_ *run, _ value, args []value) (value, error) {
		return parseFloat(toString(arg(args, 0))), nil
	})
	sc.vars["isNaN"] = native("isNaN", func(_ *run, _ value, args []value) (value, error) {
		return math.IsNaN(toNumber(arg(args, 0))), nil
	})
	sc.vars["isFinite"] = native("isFinite", func(_ *run, _ value, args []value) (value, error) {
		n := toNumber(arg(args, 0))
		return !math.IsNaN(n) && !math.IsInf(n, 0), nil
	})
	sc.vars["atob"] = native("atob", func(_ *run, _ value, args []value) (value, error) {
		return atob(toString(arg(args, 0)))
	})
	sc.vars["eval"] = native("eval", func(r *run, _ value, args []value) (value, error) {
		src, ok := arg(args, 0).(string)
		if !ok {
			return arg(args, 0), nil
		}
		prog, err := parseProgram(src)
		if err != nil {
			return nil, err
		}
		// Indirect eval: the code runs in the global scope.
		return r.program(prog, r.global)
	})
	return sc
}

// toUint32 implements ToUint32, the conversion behind >>> and the shift
// counts.
func toUint32(v value) uint32 {
	n := toNumber(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(n), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return uint32(m)
}

// toInt32 implements ToInt32 for the bitwise operators.
func toInt32(v value) int32 { return int32(toUint32(v)) }

func toUint16(n float64) uint16 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(n), 65536)
	if m < 0 {
		m += 65536
	}
	return uint16(m)
}

func mathObject() *object {
	m := newObject()
	m.set("PI", math.Pi)
	m.set("E", math.E)
	m.set("LN2", math.Ln2)
	m.set("LN10", math.Ln10)
	m.set("SQRT2", math.Sqrt2)

	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"ceil":  math.Ceil,
		"floor": math.Floor,
		"trunc": math.Trunc,
		"sqrt":  math.Sqrt,
		"exp":   math.Exp,
		"log":   math.Log,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"atan":  math.Atan,
		"round": jsRound,
	}
	for _, name := range []string{"abs", "ceil", "floor", "trunc", "sqrt", "exp", "log", "sin", "cos", "tan", "atan", "round"} {
		f := unary[name]
		m.set(name, native(name, func(_ *run, _ value, args []value) (value, error) {
			return f(toNumber(arg(args, 0))), nil
		}))
	}
	m.set("pow", native("pow", func(_ *run, _ value, args []value) (value, error) {
		return jsPow(toNumber(arg(args, 0)), toNumber(arg(args, 1))), nil
	}))
	m.set("atan2", native("atan2", func(_ *run, _ value, args []value) (value, error) {
		return math.Atan2(toNumber(arg(args, 0)), toNumber(arg(args, 1))), nil
	}))
	m.set("max", native("max", func(_ *run, _ value, args []value) (value, error) {
		return extremum(args, math.Inf(-1), func(a, b float64) bool { return a > b }), nil
	}))
	m.set("min", native("min", func(_ *run, _ value, args []value) (value, error) {
		return extremum(args, math.Inf(1), func(a, b float64) bool { return a < b }), nil
	}))
	return m
}

// jsRound rounds half toward +Infinity.
func jsRound(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r := math.Floor(x)
	if x-r >= 0.5 {
		r++
	}
	return r
}

func jsPow(x, y float64) float64 {
	if math.IsNaN(y) {
		return math.NaN()
	}
	if math.Abs(x) == 1 && math.IsInf(y, 0) {
		return math.NaN()
	}
	return math.Pow(x, y)
}

func extremum(args []value, start float64, better func(a, b float64) bool) float64 {
	out := start
	for _, a := range args {
		n := toNumber(a)
		if math.IsNaN(n) {
			return math.NaN()
		}
		if better(n, out) {
			out = n
		}
	}
	return out
}

func digitValue(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

func parseInt(s string, radix int) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	sign := 1.0
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	stripPrefix := true
	if radix != 0 {
		if radix < 2 || radix > 36 {
			return math.NaN()
		}
		stripPrefix = radix == 16
	} else {
		radix = 10
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	n, digits := 0.0, 0
	for _, c := range s {
		d := digitValue(c)
		if d >= radix {
			break
		}
		n = n*float64(radix) + float64(d)
		digits++
	}
	if digits == 0 {
		return math.NaN()
	}
	return sign * n
}

var floatPrefix = regexp.MustCompile(`^[+-]?(?:Infinity|(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)

func parseFloat(s string) float64 {
	m := floatPrefix.FindString(strings.TrimLeftFunc(s, unicode.IsSpace))
	if m == "" {
		return math.NaN()
	}
	return stringToNumber(m)
}

func atob(s string) (value, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, newError(TypeError, "atob: the string to be decoded is not correctly encoded")
	}
	// Each decoded byte becomes one Latin-1 character.
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

func arrayProp(a *array, key string) value {
	if i, ok := arrayIndex(key); ok {
		if i < len(a.elems) {
			return a.elems[i]
		}
		return undefined
	}
	switch key {
	case "length":
		return float64(len(a.elems))
	case "join":
		return native("join", func(_ *run, this value, args []value) (value, error) {
			sep := ","
			if s := arg(args, 0); s != undefined {
				sep = toString(s)
			}
			return joinArray(a, sep), nil
		})
	case "toString":
		return native("toString", func(_ *run, _ value, _ []value) (value, error) {
			return joinArray(a, ","), nil
		})
	case "push":
		return native("push", func(_ *run, _ value, args []value) (value, error) {
			a.elems = append(a.elems, args...)
			return float64(len(a.elems)), nil
		})
	}
	return undefined
}

func stringProp(s string, key string) value {
	units := utf16Units(s)
	if i, ok := arrayIndex(key); ok {
		if i < len(units) {
			return fromUnits(units[i : i+1])
		}
		return undefined
	}
	method := func(fn func(args []value) (value, error)) value {
		return native(key, func(_ *run, _ value, args []value) (value, error) { return fn(args) })
	}
	switch key {
	case "length":
		return float64(len(units))
	case "toString", "valueOf":
		return method(func([]value) (value, error) { return s, nil })
	case "charAt":
		return method(func(args []value) (value, error) {
			i := toInteger(arg(args, 0))
			if i < 0 || i >= float64(len(units)) {
				return "", nil
			}
			return fromUnits(units[int(i) : int(i)+1]), nil
		})
	case "charCodeAt":
		return method(func(args []value) (value, error) {
			i := toInteger(arg(args, 0))
			if i < 0 || i >= float64(len(units)) {
				return math.NaN(), nil
			}
			return float64(units[int(i)]), nil
		})
	case "substr":
		return method(func(args []value) (value, error) {
			start := clampIndex(toInteger(arg(args, 0)), len(units))
			n := len(units) - start
			if l := arg(args, 1); l != undefined {
				n = int(math.Min(math.Max(toInteger(l), 0), float64(n)))
			}
			return fromUnits(units[start : start+n]), nil
		})
	case "substring":
		return method(func(args []value) (value, error) {
			clamp := func(v float64) int { return int(math.Min(math.Max(v, 0), float64(len(units)))) }
			from, to := clamp(toInteger(arg(args, 0))), len(units)
			if e := arg(args, 1); e != undefined {
				to = clamp(toInteger(e))
			}
			if from > to {
				from, to = to, from
			}
			return fromUnits(units[from:to]), nil
		})
	case "slice":
		return method(func(args []value) (value, error) {
			from, to := clampIndex(toInteger(arg(args, 0)), len(units)), len(units)
			if e := arg(args, 1); e != undefined {
				to = clampIndex(toInteger(e), len(units))
			}
			if from >= to {
				return "", nil
			}
			return fromUnits(units[from:to]), nil
		})
	case "indexOf":
		return method(func(args []value) (value, error) {
			needle := utf16Units(toString(arg(args, 0)))
			from := int(math.Min(math.Max(toInteger(arg(args, 1)), 0), float64(len(units))))
			for i := from; i+len(needle) <= len(units); i++ {
				if equalUnits(units[i:i+len(needle)], needle) {
					return float64(i), nil
				}
			}
			return -1.0, nil
		})
	case "split":
		return method(func(args []value) (value, error) {
			out := &array{}
			if arg(args, 0) == undefined {
				out.elems = []value{s}
				return out, nil
			}
			sep := toString(arg(args, 0))
			if sep == "" {
				for i := range units {
					out.elems = append(out.elems, fromUnits(units[i:i+1]))
				}
				return out, nil
			}
			for _, part := range strings.Split(s, sep) {
				out.elems = append(out.elems, part)
			}
			return out, nil
		})
	case "toUpperCase":
		return method(func([]value) (value, error) { return strings.ToUpper(s), nil })
	case "toLowerCase":
		return method(func([]value) (value, error) { return strings.ToLower(s), nil })
	case "italics":
		return method(func([]value) (value, error) { return "<i>" + s + "</i>", nil })
	}
	return undefined
}

func equalUnits(a, b []uint16) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func numberProp(f float64, key string) value {
	switch key {
	case "toFixed":
		return native("toFixed", func(_ *run, _ value, args []value) (value, error) {
			return toFixed(f, int(math.Max(math.Min(toInteger(arg(args, 0)), 101), -1)))
		})
	case "toString":
		return native("toString", func(_ *run, _ value, args []value) (value, error) {
			radix := 10
			if r := arg(args, 0); r != undefined {
				radix = int(toInteger(r))
			}
			return formatRadix(f, radix)
		})
	case "valueOf":
		return native("valueOf", func(_ *run, _ value, _ []value) (value, error) { return f, nil })
	}
	return undefined
}

func formatRadix(f float64, radix int) (value, error) {
	if radix < 2 || radix > 36 {
		return nil, newError(RangeError, "toString() radix must be between 2 and 36")
	}
	if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) {
		return numberToString(f), nil
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return nil, newError(RangeError, "toString(%d) is only supported for safe integers", radix)
	}
	return strconv.FormatInt(int64(f), radix), nil
}
