package jschallenge

// Abstract syntax tree.  Statements and expressions are plain structs; the
// interpreter switches on their concrete type.
type (
	stmt interface{}
	expr interface{}

	varStmt struct {
		names []string
		inits []expr // nil entry when the declarator has no initialiser
	}
	funcDecl struct {
		fn *funcLit
	}
	exprStmt struct {
		x expr
	}
	returnStmt struct {
		x expr // nil for a bare return
	}
	blockStmt struct {
		body []stmt
	}
	// forStmt also represents while loops, which have only a condition.
	forStmt struct {
		init   stmt // *varStmt, *exprStmt or nil
		cond   expr // nil loops until the iteration limit
		update expr
		body   stmt
	}

	numberLit struct{ v float64 }
	stringLit struct{ v string }
	boolLit   struct{ v bool }
	nullLit   struct{}
	ident     struct {
		name string
		pos  int
	}
	arrayLit  struct{ elems []expr }
	objectLit struct {
		keys []string
		vals []expr
	}
	funcLit struct {
		name   string
		params []string
		body   []stmt
	}
	unaryExpr struct {
		op string
		x  expr
	}
	binaryExpr struct {
		op   string
		l, r expr
	}
	logicalExpr struct {
		op   string
		l, r expr
	}
	condExpr struct {
		cond, then, els expr
	}
	updateExpr struct {
		op     string // "++" or "--"
		prefix bool
		target expr // *ident or *memberExpr
	}
	assignExpr struct {
		op     string
		target expr // *ident or *memberExpr
		val    expr
	}
	memberExpr struct {
		obj expr
		key expr
	}
	callExpr struct {
		callee expr
		args   []expr
		pos    int
	}
)

// unsupportedKeywords are reserved words that cannot be used as identifiers.
// Apart from for and while, which statement handles first, they are outside
// the puzzle subset, and rejecting them up front gives a SyntaxError instead
// of a confusing ReferenceError at run time.
var unsupportedKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "try": true, "catch": true, "throw": true,
	"new": true, "delete": true, "this": true, "class": true, "with": true,
	"break": true, "continue": true, "instanceof": true, "in": true,
	"void": true, "yield": true, "await": true, "import": true, "export": true,
}

// maxNesting bounds syntactic nesting.  Scripts come from untrusted pages,
// and a recursive-descent parser fed a megabyte of "(" would otherwise
// overflow the goroutine stack, which cannot be recovered.
const maxNesting = 1000

type parser struct {
	toks  []token
	pos   int
	depth int
}

func parseProgram(src string) ([]stmt, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var body []stmt
	for p.peek().kind != tokEOF {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s != nil {
			body = append(body, s)
		}
	}
	return body, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// enter records one more level of nesting; every successful call must be
// paired with leave.
func (p *parser) enter() error {
	if p.depth >= maxNesting {
		return syntaxError(p.peek().pos, "expression nested too deeply")
	}
	p.depth++
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) expect(text string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != text {
		return syntaxError(t.pos, "expected %q, found %s", text, describe(t))
	}
	return nil
}

func (p *parser) identifier() (string, error) {
	t := p.next()
	if t.kind != tokIdent || unsupportedKeywords[t.text] {
		return "", syntaxError(t.pos, "expected identifier, found %s", describe(t))
	}
	return t.text, nil
}

// semicolon consumes an explicit ';' or accepts an automatically inserted one
// before '}', end of input or a line break.
func (p *parser) semicolon() error {
	if p.isPunct(";") {
		p.next()
		return nil
	}
	t := p.peek()
	if t.kind == tokEOF || t.nl || (t.kind == tokPunct && t.text == "}") {
		return nil
	}
	return syntaxError(t.pos, "unexpected %s", describe(t))
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return "string literal"
	case tokNumber:
		return "number " + t.text
	default:
		return "token " + t.text
	}
}

func (p *parser) statement() (stmt, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	t := p.peek()
	switch {
	case t.kind == tokPunct && t.text == ";":
		p.next()
		return nil, nil
	case t.kind == tokPunct && t.text == "{":
		p.next()
		body, err := p.statementsUntil("}")
		if err != nil {
			return nil, err
		}
		return &blockStmt{body: body}, nil
	case t.kind == tokIdent && (t.text == "var" || t.text == "let" || t.text == "const"):
		p.next()
		return p.varDeclaration()
	case t.kind == tokIdent && t.text == "for":
		p.next()
		return p.forStatement()
	case t.kind == tokIdent && t.text == "while":
		p.next()
		return p.whileStatement()
	case t.kind == tokIdent && t.text == "function":
		p.next()
		fn, err := p.function()
		if err != nil {
			return nil, err
		}
		if fn.name == "" {
			return nil, syntaxError(t.pos, "function statement requires a name")
		}
		return &funcDecl{fn: fn}, nil
	case t.kind == tokIdent && t.text == "return":
		p.next()
		r := &returnStmt{}
		nt := p.peek()
		if !(nt.nl || nt.kind == tokEOF || (nt.kind == tokPunct && (nt.text == ";" || nt.text == "}"))) {
			x, err := p.expression()
			if err != nil {
				return nil, err
			}
			r.x = x
		}
		return r, p.semicolon()
	case t.kind == tokIdent && unsupportedKeywords[t.text]:
		return nil, syntaxError(t.pos, "unsupported keyword %q", t.text)
	}

	x, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &exprStmt{x: x}, p.semicolon()
}

func (p *parser) statementsUntil(closing string) ([]stmt, error) {
	var body []stmt
	for !p.isPunct(closing) {
		if p.peek().kind == tokEOF {
			return nil, syntaxError(p.peek().pos, "expected %q, found end of input", closing)
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s != nil {
			body = append(body, s)
		}
	}
	p.next()
	return body, nil
}

func (p *parser) varDeclaration() (stmt, error) {
	v, err := p.declarators()
	if err != nil {
		return nil, err
	}
	return v, p.semicolon()
}

// declarators parses a comma-separated declarator list without its
// terminator, so a for header can require an explicit ';'.
func (p *parser) declarators() (*varStmt, error) {
	v := &varStmt{}
	for {
		name, err := p.identifier()
		if err != nil {
			return nil, err
		}
		var init expr
		if p.isPunct("=") {
			p.next()
			if init, err = p.assignment(); err != nil {
				return nil, err
			}
		}
		v.names = append(v.names, name)
		v.inits = append(v.inits, init)
		if !p.isPunct(",") {
			return v, nil
		}
		p.next()
	}
}

// forStatement parses the remainder of a for loop after the keyword.  Only
// the three-clause form is supported; for-in and for-of are not.
func (p *parser) forStatement() (stmt, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	f := &forStmt{}
	switch t := p.peek(); {
	case t.kind == tokPunct && t.text == ";":
	case t.kind == tokIdent && (t.text == "var" || t.text == "let" || t.text == "const"):
		p.next()
		init, err := p.declarators()
		if err != nil {
			return nil, err
		}
		f.init = init
	default:
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		f.init = &exprStmt{x: x}
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	if !p.isPunct(";") {
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		f.cond = cond
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	if !p.isPunct(")") {
		update, err := p.expression()
		if err != nil {
			return nil, err
		}
		f.update = update
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	f.body = body
	return f, nil
}

func (p *parser) whileStatement() (stmt, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	return &forStmt{cond: cond, body: body}, nil
}

// function parses the remainder of a function after the keyword.
func (p *parser) function() (*funcLit, error) {
	fn := &funcLit{}
	if p.peek().kind == tokIdent {
		name, err := p.identifier()
		if err != nil {
			return nil, err
		}
		fn.name = name
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	for !p.isPunct(")") {
		name, err := p.identifier()
		if err != nil {
			return nil, err
		}
		fn.params = append(fn.params, name)
		if p.isPunct(",") {
			p.next()
		} else if !p.isPunct(")") {
			return nil, syntaxError(p.peek().pos, "expected \",\" or \")\" in parameter list")
		}
	}
	p.next()
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	body, err := p.statementsUntil("}")
	if err != nil {
		return nil, err
	}
	fn.body = body
	return fn, nil
}

// expression does not support the comma operator; puzzles never use it
// outside var declarations and argument lists.
func (p *parser) expression() (expr, error) {
	return p.assignment()
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true, ">>>=": true,
}

func (p *parser) assignment() (expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	start := p.peek()
	left, err := p.conditional()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokPunct || !assignOps[t.text] {
		return left, nil
	}
	if !isReference(left) {
		return nil, syntaxError(start.pos, "invalid assignment target")
	}
	p.next()
	right, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &assignExpr{op: t.text, target: left, val: right}, nil
}

func (p *parser) conditional() (expr, error) {
	cond, err := p.logical(0)
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return cond, nil
	}
	p.next()
	then, err := p.assignment()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &condExpr{cond: cond, then: then, els: els}, nil
}

// binaryLevels lists binary operators from loosest to tightest binding.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"|"},
	{"^"},
	{"&"},
	{"==", "!=", "===", "!=="},
	{"<", ">", "<=", ">="},
	{"<<", ">>", ">>>"},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) logical(level int) (expr, error) {
	if level == len(binaryLevels) {
		return p.unary()
	}
	left, err := p.logical(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPunct || !contains(binaryLevels[level], t.text) {
			return left, nil
		}
		p.next()
		right, err := p.logical(level + 1)
		if err != nil {
			return nil, err
		}
		if t.text == "&&" || t.text == "||" {
			left = &logicalExpr{op: t.text, l: left, r: right}
		} else {
			left = &binaryExpr{op: t.text, l: left, r: right}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (p *parser) unary() (expr, error) {
	t := p.peek()
	prefix := (t.kind == tokPunct && (t.text == "+" || t.text == "-" || t.text == "!" ||
		t.text == "~" || t.text == "++" || t.text == "--")) ||
		(t.kind == tokIdent && t.text == "typeof")
	if !prefix {
		return p.postfix()
	}

	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	p.next()
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	if t.text == "++" || t.text == "--" {
		if !isReference(x) {
			return nil, syntaxError(t.pos, "invalid operand for %s", t.text)
		}
		return &updateExpr{op: t.text, prefix: true, target: x}, nil
	}
	return &unaryExpr{op: t.text, x: x}, nil
}

func isReference(x expr) bool {
	switch x.(type) {
	case *ident, *memberExpr:
		return true
	}
	return false
}

func (p *parser) postfix() (expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPunct {
			return x, nil
		}
		switch t.text {
		case ".":
			p.next()
			name := p.next()
			if name.kind != tokIdent {
				return nil, syntaxError(name.pos, "expected property name, found %s", describe(name))
			}
			x = &memberExpr{obj: x, key: &stringLit{v: name.text}}
		case "[":
			p.next()
			key, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &memberExpr{obj: x, key: key}
		case "(":
			p.next()
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			x = &callExpr{callee: x, args: args, pos: t.pos}
		case "++", "--":
			if t.nl {
				return x, nil
			}
			if !isReference(x) {
				return nil, syntaxError(t.pos, "invalid operand for %s", t.text)
			}
			p.next()
			return &updateExpr{op: t.text, target: x}, nil
		default:
			return x, nil
		}
	}
}

func (p *parser) arguments() ([]expr, error) {
	var args []expr
	for !p.isPunct(")") {
		a, err := p.assignment()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isPunct(",") {
			p.next()
		} else if !p.isPunct(")") {
			return nil, syntaxError(p.peek().pos, "expected \",\" or \")\" in argument list")
		}
	}
	p.next()
	return args, nil
}

func (p *parser) primary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberLit{v: t.num}, nil
	case tokString:
		return &stringLit{v: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &boolLit{v: true}, nil
		case "false":
			return &boolLit{v: false}, nil
		case "null":
			return &nullLit{}, nil
		case "function":
			return p.function()
		}
		if unsupportedKeywords[t.text] || t.text == "var" || t.text == "return" {
			return nil, syntaxError(t.pos, "unsupported keyword %q", t.text)
		}
		return &ident{name: t.text, pos: t.pos}, nil
	case tokPunct:
		switch t.text {
		case "(":
			x, err := p.expression()
			if err != nil {
				return nil, err
			}
			return x, p.expect(")")
		case "[":
			return p.arrayLiteral()
		case "{":
			return p.objectLiteral()
		}
	}
	return nil, syntaxError(t.pos, "unexpected %s", describe(t))
}

func (p *parser) arrayLiteral() (expr, error) {
	a := &arrayLit{}
	for !p.isPunct("]") {
		if p.isPunct(",") {
			// Elision: [,1] has a hole that reads as undefined.
			p.next()
			a.elems = append(a.elems, nil)
			continue
		}
		e, err := p.assignment()
		if err != nil {
			return nil, err
		}
		a.elems = append(a.elems, e)
		if p.isPunct(",") {
			p.next()
		} else if !p.isPunct("]") {
			return nil, syntaxError(p.peek().pos, "expected \",\" or \"]\" in array literal")
		}
	}
	p.next()
	return a, nil
}

func (p *parser) objectLiteral() (expr, error) {
	o := &objectLit{}
	for !p.isPunct("}") {
		t := p.next()
		var key string
		switch t.kind {
		case tokIdent, tokString:
			key = t.text
		case tokNumber:
			key = numberToString(t.num)
		default:
			return nil, syntaxError(t.pos, "expected property name, found %s", describe(t))
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		v, err := p.assignment()
		if err != nil {
			return nil, err
		}
		o.keys = append(o.keys, key)
		o.vals = append(o.vals, v)
		if p.isPunct(",") {
			p.next()
		} else if !p.isPunct("}") {
			return nil, syntaxError(p.peek().pos, "expected \",\" or \"}\" in object literal")
		}
	}
	p.next()
	return o, nil
}
