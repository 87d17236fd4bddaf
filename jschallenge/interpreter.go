package jschallenge

import (
	"strconv"
	"strings"
)

const (
	// defaultMaxCallDepth bounds script recursion so a hostile puzzle cannot
	// overflow the goroutine stack.
	defaultMaxCallDepth = 256

	// defaultMaxIterations bounds the loop iterations of one Eval.  The
	// base64 helper of the hidden-div variant needs one per four input
	// characters.
	defaultMaxIterations = 1 << 20

	// maxEvalNesting bounds expression recursion at run time.  Parsing
	// already limits parentheses, but left-associative chains such as
	// 1+1+1+... and nested eval calls are only visible here.
	maxEvalNesting = 10000
)

// Interpreter is the default Evaluator.  It understands the expression subset
// of JavaScript that challenge puzzles are written in (see the package
// documentation) and exposes no host capabilities: no timers, no network, no
// filesystem and no DOM.
//
// An Interpreter holds only configuration; each Eval call builds a fresh
// global environment, so a single value may be shared by any number of
// goroutines.
type Interpreter struct {
	// MaxCallDepth limits nested function calls.  Zero means the default.
	MaxCallDepth int
	// MaxIterations limits the total number of loop iterations.  Zero means
	// the default.
	MaxIterations int
}

// NewInterpreter returns an Interpreter with default limits.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Eval parses and runs script in a fresh sandbox and returns the string form
// of its completion value, i.e. the value of the last expression statement
// executed.  A script with no expression statements yields "undefined".
func (in *Interpreter) Eval(script string) (string, error) {
	prog, err := parseProgram(script)
	if err != nil {
		return "", err
	}
	depth := in.MaxCallDepth
	if depth <= 0 {
		depth = defaultMaxCallDepth
	}
	iterations := in.MaxIterations
	if iterations <= 0 {
		iterations = defaultMaxIterations
	}
	r := &run{maxDepth: depth, maxSteps: iterations}
	r.global = newGlobalScope()
	v, err := r.program(prog, r.global)
	if err != nil {
		return "", err
	}
	return toString(v), nil
}

// run is the state of a single evaluation.
type run struct {
	global   *scope
	depth    int
	maxDepth int
	steps    int
	maxSteps int
	nesting  int
}

type scope struct {
	vars   map[string]value
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]value), parent: parent}
}

func (s *scope) lookup(name string) (*scope, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.vars[name]; ok {
			return sc, true
		}
	}
	return nil, false
}

// hoist declares every var and function of body in sc before execution, the
// way JavaScript does.  Redeclaring an existing binding keeps its value.
func hoist(body []stmt, sc *scope) {
	for _, s := range body {
		switch s := s.(type) {
		case *varStmt:
			for _, name := range s.names {
				if _, ok := sc.vars[name]; !ok {
					sc.vars[name] = undefined
				}
			}
		case *funcDecl:
			sc.vars[s.fn.name] = &function{name: s.fn.name, params: s.fn.params, body: s.fn.body, scope: sc}
		case *blockStmt:
			hoist(s.body, sc)
		case *forStmt:
			if s.init != nil {
				hoist([]stmt{s.init}, sc)
			}
			if s.body != nil {
				hoist([]stmt{s.body}, sc)
			}
		}
	}
}

func (r *run) program(body []stmt, sc *scope) (value, error) {
	hoist(body, sc)
	v, _, err := r.exec(body, sc)
	return v, err
}

// exec runs statements and returns the completion value, whether a return
// statement was hit, and any error.
func (r *run) exec(body []stmt, sc *scope) (value, bool, error) {
	var completion value = undefined
	for _, s := range body {
		switch s := s.(type) {
		case *varStmt:
			for i, name := range s.names {
				if s.inits[i] == nil {
					continue
				}
				v, err := r.eval(s.inits[i], sc)
				if err != nil {
					return nil, false, err
				}
				r.assign(sc, name, v)
			}
		case *funcDecl:
			// Bound during hoisting.
		case *exprStmt:
			v, err := r.eval(s.x, sc)
			if err != nil {
				return nil, false, err
			}
			completion = v
		case *returnStmt:
			if s.x == nil {
				return undefined, true, nil
			}
			v, err := r.eval(s.x, sc)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		case *blockStmt:
			v, returned, err := r.exec(s.body, sc)
			if err != nil || returned {
				return v, returned, err
			}
			if len(s.body) > 0 {
				completion = v
			}
		case *forStmt:
			v, returned, err := r.loop(s, sc)
			if err != nil || returned {
				return v, returned, err
			}
			completion = v
		}
	}
	return completion, false, nil
}

// loop runs a for or while statement and returns the completion value of
// the last iteration.
func (r *run) loop(s *forStmt, sc *scope) (value, bool, error) {
	if s.init != nil {
		if _, _, err := r.exec([]stmt{s.init}, sc); err != nil {
			return nil, false, err
		}
	}
	var completion value = undefined
	for {
		if s.cond != nil {
			c, err := r.eval(s.cond, sc)
			if err != nil {
				return nil, false, err
			}
			if !toBoolean(c) {
				return completion, false, nil
			}
		}
		r.steps++
		if r.steps > r.maxSteps {
			return nil, false, newError(RangeError, "loop iteration limit exceeded")
		}
		if s.body != nil {
			v, returned, err := r.exec([]stmt{s.body}, sc)
			if err != nil || returned {
				return v, returned, err
			}
			completion = v
		}
		if s.update != nil {
			if _, err := r.eval(s.update, sc); err != nil {
				return nil, false, err
			}
		}
	}
}

// assign writes name in the nearest scope that declares it, or creates a
// global binding as sloppy-mode JavaScript does.
func (r *run) assign(sc *scope, name string, v value) {
	if owner, ok := sc.lookup(name); ok {
		owner.vars[name] = v
		return
	}
	r.global.vars[name] = v
}

func (r *run) eval(x expr, sc *scope) (value, error) {
	if r.nesting >= maxEvalNesting {
		return nil, newError(RangeError, "expression nested too deeply")
	}
	r.nesting++
	v, err := r.evalExpr(x, sc)
	r.nesting--
	return v, err
}

func (r *run) evalExpr(x expr, sc *scope) (value, error) {
	switch x := x.(type) {
	case *numberLit:
		return x.v, nil
	case *stringLit:
		return x.v, nil
	case *boolLit:
		return x.v, nil
	case *nullLit:
		return null, nil
	case *ident:
		owner, ok := sc.lookup(x.name)
		if !ok {
			return nil, newError(ReferenceError, "%s is not defined", x.name)
		}
		return owner.vars[x.name], nil
	case *arrayLit:
		a := &array{elems: make([]value, len(x.elems))}
		for i, e := range x.elems {
			if e == nil {
				a.elems[i] = undefined
				continue
			}
			v, err := r.eval(e, sc)
			if err != nil {
				return nil, err
			}
			a.elems[i] = v
		}
		return a, nil
	case *objectLit:
		o := newObject()
		for i, k := range x.keys {
			v, err := r.eval(x.vals[i], sc)
			if err != nil {
				return nil, err
			}
			o.set(k, v)
		}
		return o, nil
	case *funcLit:
		return &function{name: x.name, params: x.params, body: x.body, scope: sc}, nil
	case *unaryExpr:
		return r.unary(x, sc)
	case *binaryExpr:
		l, err := r.eval(x.l, sc)
		if err != nil {
			return nil, err
		}
		rv, err := r.eval(x.r, sc)
		if err != nil {
			return nil, err
		}
		return binary(x.op, l, rv)
	case *logicalExpr:
		l, err := r.eval(x.l, sc)
		if err != nil {
			return nil, err
		}
		if toBoolean(l) == (x.op == "||") {
			return l, nil
		}
		return r.eval(x.r, sc)
	case *condExpr:
		c, err := r.eval(x.cond, sc)
		if err != nil {
			return nil, err
		}
		if toBoolean(c) {
			return r.eval(x.then, sc)
		}
		return r.eval(x.els, sc)
	case *memberExpr:
		obj, key, err := r.reference(x, sc)
		if err != nil {
			return nil, err
		}
		return getProp(obj, key)
	case *assignExpr:
		return r.assignment(x, sc)
	case *updateExpr:
		return r.update(x, sc)
	case *callExpr:
		return r.callExpr(x, sc)
	}
	return nil, newError(SyntaxError, "unsupported expression %T", x)
}

func (r *run) reference(m *memberExpr, sc *scope) (value, string, error) {
	obj, err := r.eval(m.obj, sc)
	if err != nil {
		return nil, "", err
	}
	k, err := r.eval(m.key, sc)
	if err != nil {
		return nil, "", err
	}
	return obj, toString(k), nil
}

func (r *run) unary(x *unaryExpr, sc *scope) (value, error) {
	if x.op == "typeof" {
		if id, ok := x.x.(*ident); ok {
			if _, found := sc.lookup(id.name); !found {
				return "undefined", nil
			}
		}
	}
	v, err := r.eval(x.x, sc)
	if err != nil {
		return nil, err
	}
	switch x.op {
	case "+":
		return toNumber(v), nil
	case "-":
		return -toNumber(v), nil
	case "!":
		return !toBoolean(v), nil
	case "~":
		return float64(^toInt32(v)), nil
	case "typeof":
		return typeOf(v), nil
	}
	return nil, newError(SyntaxError, "unknown unary operator %q", x.op)
}

func (r *run) assignment(x *assignExpr, sc *scope) (value, error) {
	switch t := x.target.(type) {
	case *ident:
		var cur value
		if x.op != "=" {
			owner, ok := sc.lookup(t.name)
			if !ok {
				return nil, newError(ReferenceError, "%s is not defined", t.name)
			}
			cur = owner.vars[t.name]
		}
		v, err := r.eval(x.val, sc)
		if err != nil {
			return nil, err
		}
		if x.op != "=" {
			if v, err = binary(strings.TrimSuffix(x.op, "="), cur, v); err != nil {
				return nil, err
			}
		}
		r.assign(sc, t.name, v)
		return v, nil
	case *memberExpr:
		obj, key, err := r.reference(t, sc)
		if err != nil {
			return nil, err
		}
		var cur value
		if x.op != "=" {
			if cur, err = getProp(obj, key); err != nil {
				return nil, err
			}
		}
		v, err := r.eval(x.val, sc)
		if err != nil {
			return nil, err
		}
		if x.op != "=" {
			if v, err = binary(strings.TrimSuffix(x.op, "="), cur, v); err != nil {
				return nil, err
			}
		}
		if err := setProp(obj, key, v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, newError(SyntaxError, "invalid assignment target")
}

// update applies ++ or -- and returns the new value for the prefix form and
// the old one, converted to a number, for the postfix form.
func (r *run) update(x *updateExpr, sc *scope) (value, error) {
	delta := 1.0
	if x.op == "--" {
		delta = -1
	}
	var old float64
	switch t := x.target.(type) {
	case *ident:
		owner, ok := sc.lookup(t.name)
		if !ok {
			return nil, newError(ReferenceError, "%s is not defined", t.name)
		}
		old = toNumber(owner.vars[t.name])
		owner.vars[t.name] = old + delta
	case *memberExpr:
		obj, key, err := r.reference(t, sc)
		if err != nil {
			return nil, err
		}
		cur, err := getProp(obj, key)
		if err != nil {
			return nil, err
		}
		old = toNumber(cur)
		if err := setProp(obj, key, old+delta); err != nil {
			return nil, err
		}
	default:
		return nil, newError(SyntaxError, "invalid update target")
	}
	if x.prefix {
		return old + delta, nil
	}
	return old, nil
}

func (r *run) callExpr(x *callExpr, sc *scope) (value, error) {
	var (
		this   value = undefined
		callee value
		err    error
		label  string
	)
	switch c := x.callee.(type) {
	case *memberExpr:
		var key string
		if this, key, err = r.reference(c, sc); err != nil {
			return nil, err
		}
		if callee, err = getProp(this, key); err != nil {
			return nil, err
		}
		label = key
	default:
		if callee, err = r.eval(c, sc); err != nil {
			return nil, err
		}
		if id, ok := c.(*ident); ok {
			label = id.name
		} else {
			label = "expression"
		}
	}

	fn, ok := callee.(*function)
	if !ok {
		return nil, newError(TypeError, "%s is not a function", label)
	}
	args := make([]value, len(x.args))
	for i, a := range x.args {
		if args[i], err = r.eval(a, sc); err != nil {
			return nil, err
		}
	}
	return r.call(fn, this, args)
}

func (r *run) call(fn *function, this value, args []value) (value, error) {
	if fn.native != nil {
		return fn.native(r, this, args)
	}
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > r.maxDepth {
		return nil, newError(RangeError, "maximum call stack size exceeded")
	}

	sc := newScope(fn.scope)
	for i, p := range fn.params {
		if i < len(args) {
			sc.vars[p] = args[i]
		} else {
			sc.vars[p] = undefined
		}
	}
	hoist(fn.body, sc)
	v, returned, err := r.exec(fn.body, sc)
	if err != nil {
		return nil, err
	}
	if !returned {
		return undefined, nil
	}
	return v, nil
}

func binary(op string, l, r value) (value, error) {
	switch op {
	case "+":
		lp, rp := toPrimitive(l), toPrimitive(r)
		_, ls := lp.(string)
		_, rs := rp.(string)
		if ls || rs {
			return toString(lp) + toString(rp), nil
		}
		return toNumber(lp) + toNumber(rp), nil
	case "-":
		return toNumber(l) - toNumber(r), nil
	case "*":
		return toNumber(l) * toNumber(r), nil
	case "/":
		return toNumber(l) / toNumber(r), nil
	case "%":
		return jsMod(toNumber(l), toNumber(r)), nil
	case "==":
		return looseEquals(l, r), nil
	case "!=":
		return !looseEquals(l, r), nil
	case "===":
		return strictEquals(l, r), nil
	case "!==":
		return !strictEquals(l, r), nil
	case "<", ">", "<=", ">=":
		return compare(op, l, r), nil
	case "&":
		return float64(toInt32(l) & toInt32(r)), nil
	case "|":
		return float64(toInt32(l) | toInt32(r)), nil
	case "^":
		return float64(toInt32(l) ^ toInt32(r)), nil
	case "<<":
		return float64(toInt32(l) << (toUint32(r) & 31)), nil
	case ">>":
		return float64(toInt32(l) >> (toUint32(r) & 31)), nil
	case ">>>":
		return float64(toUint32(l) >> (toUint32(r) & 31)), nil
	}
	return nil, newError(SyntaxError, "unknown binary operator %q", op)
}

func compare(op string, l, r value) bool {
	lp, rp := toPrimitive(l), toPrimitive(r)
	ls, lok := lp.(string)
	rs, rok := rp.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case ">":
			return ls > rs
		case "<=":
			return ls <= rs
		default:
			return ls >= rs
		}
	}
	a, b := toNumber(lp), toNumber(rp)
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	default:
		return a >= b
	}
}

// arrayIndex reports whether key is a canonical array index.
func arrayIndex(key string) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || strconv.Itoa(i) != key {
		return 0, false
	}
	return i, true
}

func getProp(obj value, key string) (value, error) {
	switch o := obj.(type) {
	case undefinedValue, nullValue:
		return nil, newError(TypeError, "cannot read property %q of %s", key, toString(obj))
	case *object:
		if v, ok := o.get(key); ok {
			return v, nil
		}
		if key == "toString" {
			return native("toString", func(_ *run, this value, _ []value) (value, error) { return toString(this), nil }), nil
		}
		return undefined, nil
	case *array:
		return arrayProp(o, key), nil
	case *function:
		if o.props != nil {
			if v, ok := o.props.get(key); ok {
				return v, nil
			}
		}
		switch key {
		case "name":
			return o.name, nil
		case "length":
			return float64(len(o.params)), nil
		}
		return undefined, nil
	case string:
		return stringProp(o, key), nil
	case float64:
		return numberProp(o, key), nil
	case bool:
		if key == "toString" {
			return native("toString", func(_ *run, this value, _ []value) (value, error) { return toString(this), nil }), nil
		}
		return undefined, nil
	}
	return undefined, nil
}

func setProp(obj value, key string, v value) error {
	switch o := obj.(type) {
	case *object:
		o.set(key, v)
		return nil
	case *array:
		i, ok := arrayIndex(key)
		if !ok {
			return newError(TypeError, "cannot set property %q on an array", key)
		}
		for len(o.elems) <= i {
			o.elems = append(o.elems, undefined)
		}
		o.elems[i] = v
		return nil
	case *function:
		if o.props == nil {
			o.props = newObject()
		}
		o.props.set(key, v)
		return nil
	}
	return newError(TypeError, "cannot set property %q on %s", key, typeOf(obj))
}
