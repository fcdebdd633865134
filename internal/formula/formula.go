// Package formula evaluates per-record derived expressions. A formula is an
// arithmetic expression over `{N}` placeholders, where N is a field id in
// the record's table. Placeholders are substituted first, the candidate
// expression is checked against a strict character set, and the result is
// parsed into an AST of numeric literals and the four binary operators,
// which is interpreted directly. No generic expression evaluator is
// involved, so there is no injection surface.
package formula

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrDivisionByZero is the distinguished divide-by-zero result.
	ErrDivisionByZero = errors.New("formula: division by zero")
	// ErrInvalidCharacters marks a candidate expression containing anything
	// beyond digits, decimal points, whitespace, parentheses, and + - * /.
	ErrInvalidCharacters = errors.New("formula: invalid characters in formula")
	// ErrSyntax marks a malformed expression.
	ErrSyntax = errors.New("formula: syntax error")
	// ErrEmpty marks an empty formula string.
	ErrEmpty = errors.New("formula: empty formula")
)

// MissingFieldError reports a placeholder whose field has no definition or
// no stored value. This is a hard failure, never a silent zero.
type MissingFieldError struct {
	FieldID int64
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("formula: field {%d} not found or has no value", e.FieldID)
}

// Operand is a resolved field reference.
type Operand struct {
	number   float64
	text     string
	isNumber bool
}

// NumberOperand wraps a numeric field value.
func NumberOperand(value float64) Operand {
	return Operand{number: value, isNumber: true}
}

// TextOperand wraps a non-numeric field value. If the text parses as a
// number it participates in arithmetic; otherwise the character check
// rejects the substituted expression.
func TextOperand(value string) Operand {
	return Operand{text: value}
}

func (o Operand) substitution() string {
	if o.isNumber {
		return strconv.FormatFloat(o.number, 'f', -1, 64)
	}
	return strings.TrimSpace(o.text)
}

var (
	placeholderPattern = regexp.MustCompile(`\{(\d+)\}`)
	allowedCharacters  = regexp.MustCompile(`^[0-9.\s()+\-*/]*$`)
)

// Evaluate substitutes operands into the expression and computes the result.
// The operand map holds only fields that have both a definition and a stored
// value; any placeholder outside it fails with a MissingFieldError.
func Evaluate(expression string, operands map[int64]Operand) (float64, error) {
	if strings.TrimSpace(expression) == "" {
		return 0, ErrEmpty
	}

	var missing *MissingFieldError
	candidate := placeholderPattern.ReplaceAllStringFunc(expression, func(match string) string {
		if missing != nil {
			return match
		}
		id, err := strconv.ParseInt(placeholderPattern.FindStringSubmatch(match)[1], 10, 64)
		if err != nil {
			missing = &MissingFieldError{FieldID: -1}
			return match
		}
		operand, ok := operands[id]
		if !ok {
			missing = &MissingFieldError{FieldID: id}
			return match
		}
		return "(" + operand.substitution() + ")"
	})
	if missing != nil {
		return 0, missing
	}

	if !allowedCharacters.MatchString(candidate) {
		return 0, ErrInvalidCharacters
	}

	node, err := parse(candidate)
	if err != nil {
		return 0, err
	}
	return node.eval()
}

// Describe renders an evaluation failure as the user-facing value of the
// formula field. It never exposes internals beyond the offending field id.
func Describe(err error) string {
	var missing *MissingFieldError
	switch {
	case errors.As(err, &missing):
		return fmt.Sprintf("Error: Field {%d} not found or has no value", missing.FieldID)
	case errors.Is(err, ErrDivisionByZero):
		return "Error: Division by zero"
	case errors.Is(err, ErrInvalidCharacters):
		return "Error: Invalid characters in formula"
	case errors.Is(err, ErrSyntax), errors.Is(err, ErrEmpty):
		return "Error: Syntax error in formula"
	default:
		return "Error: Formula evaluation failed"
	}
}
