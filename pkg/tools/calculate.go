package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ensemble-ai/ensemble/pkg/tool"
)

type calculateArgs struct {
	Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression to evaluate"`
}

// CalculateTool evaluates arithmetic expressions: + - * / %, parentheses,
// unary minus and the bit shifts << and >> on integer operands. Parse and
// evaluation failures come back as result strings.
func CalculateTool() (*tool.Tool, error) {
	return tool.New(ToolCalculate,
		"Evaluate an arithmetic expression. Supports + - * / % ( ) << >>.",
		calculateArgs{},
		func(_ context.Context, args map[string]any) (string, error) {
			expr, _ := args["expression"].(string)
			value, err := Evaluate(expr)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}
			return formatNumber(value), nil
		})
}

// Evaluate parses and evaluates one expression.
func Evaluate(expression string) (float64, error) {
	p := &exprParser{input: expression}
	value, err := p.parseShift()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// exprParser is a recursive-descent parser over the grammar
//
//	shift   := sum (("<<" | ">>") sum)*
//	sum     := product (("+" | "-") product)*
//	product := unary (("*" | "/" | "%") unary)*
//	unary   := "-" unary | primary
//	primary := number | "(" shift ")"
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) parseShift() (float64, error) {
	left, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		var op string
		switch {
		case strings.HasPrefix(p.input[p.pos:], "<<"):
			op = "<<"
		case strings.HasPrefix(p.input[p.pos:], ">>"):
			op = ">>"
		default:
			return left, nil
		}
		p.pos += 2

		right, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		li, ri, err := integerOperands(op, left, right)
		if err != nil {
			return 0, err
		}
		if ri < 0 || ri > 63 {
			return 0, fmt.Errorf("shift count %d out of range", ri)
		}
		if op == "<<" {
			left = float64(li << uint(ri))
		} else {
			left = float64(li >> uint(ri))
		}
	}
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++

		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++

		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			li, ri, err := integerOperands("%", left, right)
			if err != nil {
				return 0, err
			}
			if ri == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = float64(li % ri)
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
		value, err := p.parseUnary()
		return -value, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if p.input[p.pos] == '(' {
		p.pos++
		value, err := p.parseShift()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func integerOperands(op string, left, right float64) (int64, int64, error) {
	if left != math.Trunc(left) || right != math.Trunc(right) {
		return 0, 0, fmt.Errorf("%s requires integer operands", op)
	}
	return int64(left), int64(right), nil
}
