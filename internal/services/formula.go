package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Formula variable names available to every pricing formula. Compilation
// rejects any identifier outside this set so typos fail at modifier-load time.
var formulaVariables = map[string]struct{}{
	"price":             {},
	"basePrice":         {},
	"quantity":          {},
	"color":             {},
	"modifierValue":     {},
	"itemName":          {},
	"categoryCode":      {},
	"unitOfMeasure":     {},
	"blackPrice":        {},
	"colorPrice":        {},
	"material":          {},
	"urgency":           {},
	"urgencyMultiplier": {},
	"HUNDRED":           {},
}

// FormulaVars binds variable names to values for one evaluation. Values are
// float64 for numbers and string for text; a fresh map is built per call.
type FormulaVars map[string]any

// CompiledFormula is an immutable parsed expression. It holds no evaluation
// state and is safe for concurrent reuse.
type CompiledFormula struct {
	source string
	root   formulaNode
}

// CompileFormula parses the expression and validates its variable references.
// Errors are always *FormulaSyntaxError.
func CompileFormula(source string) (*CompiledFormula, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, &FormulaSyntaxError{Formula: source, Message: "empty expression"}
	}

	tokens, err := tokenizeFormula(trimmed)
	if err != nil {
		return nil, err
	}

	p := &formulaParser{source: trimmed, tokens: tokens}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, &FormulaSyntaxError{Formula: trimmed, Position: tok.pos, Message: fmt.Sprintf("unexpected %q", tok.text)}
	}
	return &CompiledFormula{source: trimmed, root: root}, nil
}

// Source returns the original expression text.
func (f *CompiledFormula) Source() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Evaluate runs the expression against the supplied bindings and returns the
// numeric result rounded half-up to two decimals. Non-numeric results,
// division by zero, and references to unbound optional variables all fail.
func (f *CompiledFormula) Evaluate(vars FormulaVars) (float64, error) {
	if f == nil || f.root == nil {
		return 0, errors.New("formula is not compiled")
	}
	value, err := f.root.eval(vars)
	if err != nil {
		return 0, err
	}
	number, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("expression produced %s, expected a number", formulaTypeName(value))
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, errors.New("expression produced a non-finite number")
	}
	return math.Round(number*100) / 100, nil
}

// FormulaCache is a read-through cache of compiled formulas keyed by source
// text. Entries are immutable; only the map itself needs locking.
type FormulaCache struct {
	mu      sync.RWMutex
	entries map[string]*CompiledFormula
	limit   int
}

const defaultFormulaCacheLimit = 512

// NewFormulaCache constructs a cache holding at most limit compiled formulas.
func NewFormulaCache(limit int) *FormulaCache {
	if limit <= 0 {
		limit = defaultFormulaCacheLimit
	}
	return &FormulaCache{entries: make(map[string]*CompiledFormula), limit: limit}
}

// Get returns the compiled form of source, compiling and caching on first use.
func (c *FormulaCache) Get(source string) (*CompiledFormula, error) {
	key := strings.TrimSpace(source)

	c.mu.RLock()
	cached := c.entries[key]
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	compiled, err := CompileFormula(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing := c.entries[key]; existing != nil {
		c.mu.Unlock()
		return existing, nil
	}
	if len(c.entries) >= c.limit {
		// Catalog formulas are a small bounded set; a full reset beats LRU bookkeeping.
		c.entries = make(map[string]*CompiledFormula)
	}
	c.entries[key] = compiled
	c.mu.Unlock()
	return compiled, nil
}

// Len reports the number of cached formulas.
func (c *FormulaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenOp
)

type formulaToken struct {
	kind tokenKind
	text string
	pos  int
}

func tokenizeFormula(source string) ([]formulaToken, error) {
	var tokens []formulaToken
	runes := []rune(source)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			seenDot := false
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					if seenDot {
						return nil, &FormulaSyntaxError{Formula: source, Position: i, Message: "malformed number"}
					}
					seenDot = true
				}
				i++
			}
			tokens = append(tokens, formulaToken{kind: tokenNumber, text: string(runes[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, formulaToken{kind: tokenIdent, text: string(runes[start:i]), pos: start})
		case r == '\'' || r == '"':
			quote := r
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				if runes[i] == quote {
					closed = true
					i++
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, &FormulaSyntaxError{Formula: source, Position: start, Message: "unterminated string literal"}
			}
			tokens = append(tokens, formulaToken{kind: tokenString, text: sb.String(), pos: start})
		default:
			start := i
			two := ""
			if i+1 < len(runes) {
				two = string(runes[i : i+2])
			}
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				tokens = append(tokens, formulaToken{kind: tokenOp, text: two, pos: start})
				i += 2
				continue
			}
			switch r {
			case '+', '-', '*', '/', '(', ')', '<', '>', '?', ':', '!':
				tokens = append(tokens, formulaToken{kind: tokenOp, text: string(r), pos: start})
				i++
			default:
				return nil, &FormulaSyntaxError{Formula: source, Position: start, Message: fmt.Sprintf("unexpected character %q", string(r))}
			}
		}
	}
	tokens = append(tokens, formulaToken{kind: tokenEOF, pos: len(runes)})
	return tokens, nil
}

type formulaParser struct {
	source string
	tokens []formulaToken
	index  int
}

func (p *formulaParser) peek() formulaToken {
	return p.tokens[p.index]
}

func (p *formulaParser) next() formulaToken {
	tok := p.tokens[p.index]
	if tok.kind != tokenEOF {
		p.index++
	}
	return tok
}

func (p *formulaParser) acceptOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokenOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.index++
			return op, true
		}
	}
	return "", false
}

func (p *formulaParser) errorf(pos int, format string, args ...any) error {
	return &FormulaSyntaxError{Formula: p.source, Position: pos, Message: fmt.Sprintf(format, args...)}
}

// parseExpression handles the ternary conditional, the lowest-precedence form.
func (p *formulaParser) parseExpression() (formulaNode, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp("?"); !ok {
		return cond, nil
	}
	thenBranch, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp(":"); !ok {
		return nil, p.errorf(p.peek().pos, "expected ':' in conditional expression")
	}
	elseBranch, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &condNode{cond: cond, then: thenBranch, els: elseBranch}, nil
}

func (p *formulaParser) parseOr() (formulaNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
}

func (p *formulaParser) parseAnd() (formulaNode, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *formulaParser) parseEquality() (formulaNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("==", "!=")
		if !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseComparison() (formulaNode, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("<=", ">=", "<", ">")
		if !ok {
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseAdditive() (formulaNode, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseMultiplicative() (formulaNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseUnary() (formulaNode, error) {
	if op, ok := p.acceptOp("-", "!"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *formulaParser) parsePrimary() (formulaNode, error) {
	tok := p.next()
	switch tok.kind {
	case tokenNumber:
		value, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorf(tok.pos, "malformed number %q", tok.text)
		}
		return &literalNode{value: value}, nil
	case tokenString:
		return &literalNode{value: tok.text}, nil
	case tokenIdent:
		if _, ok := formulaVariables[tok.text]; !ok {
			return nil, p.errorf(tok.pos, "unknown variable %q", tok.text)
		}
		return &variableNode{name: tok.text}, nil
	case tokenOp:
		if tok.text == "(" {
			inner, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, ok := p.acceptOp(")"); !ok {
				return nil, p.errorf(p.peek().pos, "expected ')'")
			}
			return inner, nil
		}
		return nil, p.errorf(tok.pos, "unexpected %q", tok.text)
	default:
		return nil, p.errorf(tok.pos, "unexpected end of expression")
	}
}

type formulaNode interface {
	eval(vars FormulaVars) (any, error)
}

type literalNode struct {
	value any
}

func (n *literalNode) eval(FormulaVars) (any, error) {
	return n.value, nil
}

type variableNode struct {
	name string
}

func (n *variableNode) eval(vars FormulaVars) (any, error) {
	value, ok := vars[n.name]
	if !ok || value == nil {
		return nil, fmt.Errorf("variable %q is not bound in this context", n.name)
	}
	return value, nil
}

type unaryNode struct {
	op      string
	operand formulaNode
}

func (n *unaryNode) eval(vars FormulaVars) (any, error) {
	value, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "-":
		number, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("operator '-' requires a number, got %s", formulaTypeName(value))
		}
		return -number, nil
	case "!":
		flag, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("operator '!' requires a boolean, got %s", formulaTypeName(value))
		}
		return !flag, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op    string
	left  formulaNode
	right formulaNode
}

func (n *binaryNode) eval(vars FormulaVars) (any, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}

	// Short-circuit boolean operators before evaluating the right side.
	switch n.op {
	case "&&", "||":
		flag, ok := left.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %q requires booleans, got %s", n.op, formulaTypeName(left))
		}
		if n.op == "&&" && !flag {
			return false, nil
		}
		if n.op == "||" && flag {
			return true, nil
		}
		right, err := n.right.eval(vars)
		if err != nil {
			return nil, err
		}
		rightFlag, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %q requires booleans, got %s", n.op, formulaTypeName(right))
		}
		return rightFlag, nil
	}

	right, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==", "!=":
		equal, err := formulaEquals(left, right)
		if err != nil {
			return nil, err
		}
		if n.op == "!=" {
			return !equal, nil
		}
		return equal, nil
	}

	leftNum, leftOK := left.(float64)
	rightNum, rightOK := right.(float64)
	if !leftOK || !rightOK {
		return nil, fmt.Errorf("operator %q requires numbers, got %s and %s", n.op, formulaTypeName(left), formulaTypeName(right))
	}

	switch n.op {
	case "+":
		return leftNum + rightNum, nil
	case "-":
		return leftNum - rightNum, nil
	case "*":
		return leftNum * rightNum, nil
	case "/":
		if rightNum == 0 {
			return nil, errors.New("division by zero")
		}
		return leftNum / rightNum, nil
	case "<":
		return leftNum < rightNum, nil
	case "<=":
		return leftNum <= rightNum, nil
	case ">":
		return leftNum > rightNum, nil
	case ">=":
		return leftNum >= rightNum, nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

type condNode struct {
	cond formulaNode
	then formulaNode
	els  formulaNode
}

func (n *condNode) eval(vars FormulaVars) (any, error) {
	cond, err := n.cond.eval(vars)
	if err != nil {
		return nil, err
	}
	flag, ok := cond.(bool)
	if !ok {
		return nil, fmt.Errorf("conditional requires a boolean condition, got %s", formulaTypeName(cond))
	}
	if flag {
		return n.then.eval(vars)
	}
	return n.els.eval(vars)
}

func formulaEquals(left, right any) (bool, error) {
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return false, fmt.Errorf("cannot compare number with %s", formulaTypeName(right))
		}
		return l == r, nil
	case string:
		r, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("cannot compare string with %s", formulaTypeName(right))
		}
		return l == r, nil
	case bool:
		r, ok := right.(bool)
		if !ok {
			return false, fmt.Errorf("cannot compare boolean with %s", formulaTypeName(right))
		}
		return l == r, nil
	}
	return false, fmt.Errorf("cannot compare values of type %s", formulaTypeName(left))
}

func formulaTypeName(value any) string {
	switch value.(type) {
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "nothing"
	}
	return "unknown"
}
