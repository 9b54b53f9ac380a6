package tool

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// forbiddenIdentifiers are lexically rejected from run_javascript code
// before any evaluation is attempted: they would escape the sandbox
// (process/require/import) or reach shared global state.
var forbiddenIdentifiers = []string{
	"process", "require", "import", "global", "globalThis",
	"eval", "Function", "__proto__", "constructor",
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// runJavascriptHandler evaluates a restricted arithmetic/string expression
// sandbox. There is no embedded JavaScript VM here: the sandbox contract is
// a lexical forbidden-identifier scan plus a JSON-serializable-result check,
// and the evaluator itself only supports a small literal/arithmetic subset —
// enough to exercise the contract without executing arbitrary code.
func runJavascriptHandler(ctx context.Context, call Call) (any, error) {
	var args RunJavascriptArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}

	if blocked := scanForbidden(args.Code); blocked != "" {
		return nil, apperr.Newf(apperr.BlockedCode, "forbidden identifier: %s", blocked)
	}

	result, err := evaluateExpression(args.Code)
	if err != nil {
		return nil, err
	}

	if _, err := json.Marshal(result); err != nil {
		return nil, apperr.Wrap(apperr.NonJSONSerializableReturn, err, "run_javascript")
	}
	return result, nil
}

// scanForbidden returns the first forbidden identifier found as a whole
// word in code, or "" if none appear.
func scanForbidden(code string) string {
	blocked := make(map[string]bool, len(forbiddenIdentifiers))
	for _, id := range forbiddenIdentifiers {
		blocked[id] = true
	}
	for _, match := range identifierPattern.FindAllString(code, -1) {
		if blocked[match] {
			return match
		}
	}
	return ""
}

// evaluateExpression supports a minimal subset: a single string literal, or
// numeric literals with + - * / and parentheses over them, left to right with
// standard precedence for * and /. Anything else is rejected rather than
// silently evaluated.
func evaluateExpression(code string) (any, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.New(apperr.InvalidArgs)
	}
	if strings.HasPrefix(code, `"`) && strings.HasSuffix(code, `"`) && len(code) >= 2 && strings.Count(code, `"`) == 2 {
		return strings.Trim(code, `"`), nil
	}
	if n, err := strconv.ParseFloat(code, 64); err == nil {
		return n, nil
	}
	val, err := evalArithmetic(code)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgs, err, code)
	}
	return val, nil
}

func evalArithmetic(expr string) (float64, error) {
	tokens := tokenizeArithmetic(expr)
	p := &arithParser{tokens: tokens}
	val, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, apperr.New(apperr.InvalidArgs)
	}
	return val, nil
}

func tokenizeArithmetic(expr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case r == ' ':
			flush()
		case strings.ContainsRune("+-*/()", r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type arithParser struct {
	tokens []string
	pos    int
}

func (p *arithParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *arithParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.peek()
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *arithParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.peek()
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, apperr.New(apperr.InvalidArgs)
			}
			left /= right
		}
	}
	return left, nil
}

func (p *arithParser) parseFactor() (float64, error) {
	tok := p.peek()
	if tok == "(" {
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ")" {
			return 0, apperr.New(apperr.InvalidArgs)
		}
		p.pos++
		return val, nil
	}
	n, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, apperr.New(apperr.InvalidArgs)
	}
	p.pos++
	return n, nil
}
