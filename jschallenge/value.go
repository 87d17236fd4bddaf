package jschallenge

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

// value is any runtime value produced by the interpreter.  The dynamic type is
// one of undefinedValue, nullValue, bool, float64, string, *object, *array or
// *function.
type value interface{}

type undefinedValue struct{}

type nullValue struct{}

var (
	undefined value = undefinedValue{}
	null      value = nullValue{}
)

// object is a plain JS object.  keys keeps insertion order so that
// enumeration-dependent output stays deterministic.
type object struct {
	keys  []string
	props map[string]value
}

func newObject() *object {
	return &object{props: make(map[string]value)}
}

func (o *object) get(key string) (value, bool) {
	v, ok := o.props[key]
	return v, ok
}

func (o *object) set(key string, v value) {
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
}

type array struct {
	elems []value
}

// function is either a script closure (body != nil) or a native builtin.
type function struct {
	name   string
	params []string
	body   []stmt
	scope  *scope
	native func(in *run, this value, args []value) (value, error)
	props  *object
}

func typeOf(v value) string {
	switch v.(type) {
	case undefinedValue:
		return "undefined"
	case nullValue:
		return "object"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *function:
		return "function"
	default:
		return "object"
	}
}

func toBoolean(v value) bool {
	switch x := v.(type) {
	case undefinedValue, nullValue:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// toPrimitive converts objects using the default (number-then-string) hint.
// Plain objects and functions have no useful valueOf, so they fall through to
// their string form.
func toPrimitive(v value) value {
	switch x := v.(type) {
	case *array:
		return joinArray(x, ",")
	case *object:
		return "[object Object]"
	case *function:
		if x.native != nil {
			return "function " + x.name + "() { [native code] }"
		}
		return "function " + x.name + "() {}"
	default:
		return v
	}
}

func joinArray(a *array, sep string) string {
	parts := make([]string, len(a.elems))
	for i, e := range a.elems {
		switch e.(type) {
		case undefinedValue, nullValue:
		default:
			parts[i] = toString(e)
		}
	}
	return strings.Join(parts, sep)
}

var numericLiteral = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)

func toNumber(v value) float64 {
	switch x := v.(type) {
	case undefinedValue:
		return math.NaN()
	case nullValue:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		return stringToNumber(x)
	default:
		return toNumber(toPrimitive(v))
	}
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	if !numericLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// ParseFloat reports ErrRange together with ±Inf or 0, which is
		// exactly what JS produces for out-of-range literals.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func toString(v value) string {
	switch x := v.(type) {
	case undefinedValue:
		return "undefined"
	case nullValue:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return numberToString(x)
	case string:
		return x
	default:
		return toString(toPrimitive(v))
	}
}

// numberToString formats f the way Number.prototype.toString(10) does: the
// shortest round-tripping digits, in fixed notation for exponents in
// [-7, 21) and exponential notation otherwise.
func numberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case f < 0:
		return "-" + numberToString(-f)
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(sci, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expPart)
	k := len(digits)
	n := exp + 1

	switch {
	case k <= n && n <= 21:
		return digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return "0." + strings.Repeat("0", -n) + digits
	}

	sign := "+"
	if n-1 < 0 {
		sign = "-"
	}
	e := strconv.Itoa(abs(n - 1))
	if k == 1 {
		return digits + "e" + sign + e
	}
	return digits[:1] + "." + digits[1:] + "e" + sign + e
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// toFixed implements Number.prototype.toFixed.  The decimal expansion of a
// float64 is finite, so it is computed exactly and rounded half away from
// zero, which is what the ECMAScript algorithm ("pick the larger n") yields.
func toFixed(x float64, digits int) (string, error) {
	if digits < 0 || digits > 100 {
		return "", newError(RangeError, "toFixed() digits argument must be between 0 and 100")
	}
	if math.IsNaN(x) {
		return "NaN", nil
	}
	if math.Abs(x) >= 1e21 || math.IsInf(x, 0) {
		return numberToString(x), nil
	}

	sign := ""
	if x < 0 {
		sign = "-"
		x = -x
	}

	// 1100 fractional digits is enough to hold any float64 exactly.
	exact := new(big.Float).SetPrec(0).SetFloat64(x).Text('f', 1100)
	intPart, frac, _ := strings.Cut(exact, ".")
	frac += strings.Repeat("0", digits+1)

	kept := []byte(intPart + frac[:digits])
	if frac[digits] >= '5' {
		kept = incrementDecimal(kept)
	}

	out := string(kept)
	if digits > 0 {
		cut := len(out) - digits
		out = out[:cut] + "." + out[cut:]
	}
	// (-0.0001).toFixed(2) keeps its sign: "-0.00".
	return sign + out, nil
}

func incrementDecimal(d []byte) []byte {
	for i := len(d) - 1; i >= 0; i-- {
		if d[i] == '9' {
			d[i] = '0'
			continue
		}
		d[i]++
		return d
	}
	return append([]byte{'1'}, d...)
}

// utf16Units returns s as UTF-16 code units, the unit JS strings index by.
func utf16Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func fromUnits(u []uint16) string {
	return string(utf16.Decode(u))
}

func strictEquals(a, b value) bool {
	switch x := a.(type) {
	case undefinedValue:
		_, ok := b.(undefinedValue)
		return ok
	case nullValue:
		_, ok := b.(nullValue)
		return ok
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	default:
		return a == b
	}
}

func looseEquals(a, b value) bool {
	if typeOf(a) == typeOf(b) {
		if _, aNull := a.(nullValue); aNull {
			_, bNull := b.(nullValue)
			if !bNull {
				// typeof null is "object", so compare against a real object.
				return false
			}
		}
		return strictEquals(a, b)
	}
	switch a.(type) {
	case undefinedValue, nullValue:
		switch b.(type) {
		case undefinedValue, nullValue:
			return true
		}
		return false
	}
	switch b.(type) {
	case undefinedValue, nullValue:
		return false
	}
	if ab, ok := a.(bool); ok {
		return looseEquals(boolToNumber(ab), b)
	}
	if bb, ok := b.(bool); ok {
		return looseEquals(a, boolToNumber(bb))
	}
	_, aNum := a.(float64)
	_, bNum := b.(float64)
	_, aStr := a.(string)
	_, bStr := b.(string)
	switch {
	case aNum && bStr, aStr && bNum:
		return toNumber(a) == toNumber(b)
	case isObjectLike(a):
		return looseEquals(toPrimitive(a), b)
	case isObjectLike(b):
		return looseEquals(a, toPrimitive(b))
	}
	return false
}

func boolToNumber(b bool) value {
	if b {
		return 1.0
	}
	return 0.0
}

func isObjectLike(v value) bool {
	switch v.(type) {
	case *object, *array, *function:
		return true
	}
	return false
}
