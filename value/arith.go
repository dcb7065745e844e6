package value

import (
	"fmt"
	"math"
)

// Add implements `+`. Both operands must be numeric; mixed Integer/Float
// promotes to Float.
func Add(a, b Value) (Value, error) { return arith(a, b, "+") }

// Sub implements `-`.
func Sub(a, b Value) (Value, error) { return arith(a, b, "-") }

// Mul implements `*`.
func Mul(a, b Value) (Value, error) { return arith(a, b, "*") }

// Div implements `/`; always yields a Float.
func Div(a, b Value) (Value, error) { return arith(a, b, "/") }

// Mod implements `%`; defined only on two Integers.
func Mod(a, b Value) (Value, error) {
	ai, aok := a.AsInt()
	bi, bok := b.AsInt()
	if !aok || !bok {
		return Null, fmt.Errorf("'%%' requires two integers, got %s and %s", a.Kind(), b.Kind())
	}
	if bi == 0 {
		return Null, fmt.Errorf("integer modulo by zero")
	}
	return Int(ai % bi), nil
}

func arith(a, b Value, op string) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Null, fmt.Errorf("'%s' requires two numeric operands, got %s and %s", op, a.Kind(), b.Kind())
	}
	if op == "/" {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		if bf == 0 {
			return Null, fmt.Errorf("division by zero")
		}
		return Float(af / bf), nil
	}
	if a.Kind() == KindFloat || b.Kind() == KindFloat {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		switch op {
		case "+":
			return Float(af + bf), nil
		case "-":
			return Float(af - bf), nil
		case "*":
			return Float(af * bf), nil
		}
	}
	ai, _ := a.AsInt()
	bi, _ := b.AsInt()
	switch op {
	case "+":
		sum := ai + bi
		if overflowsAdd(ai, bi, sum) {
			return Null, fmt.Errorf("integer overflow in %d + %d", ai, bi)
		}
		return Int(sum), nil
	case "-":
		diff := ai - bi
		if overflowsSub(ai, bi, diff) {
			return Null, fmt.Errorf("integer overflow in %d - %d", ai, bi)
		}
		return Int(diff), nil
	case "*":
		if ai == 0 || bi == 0 {
			return Int(0), nil
		}
		prod := ai * bi
		if prod/bi != ai {
			return Null, fmt.Errorf("integer overflow in %d * %d", ai, bi)
		}
		return Int(prod), nil
	}
	return Null, fmt.Errorf("unsupported arithmetic operator %q", op)
}

func overflowsAdd(a, b, sum int64) bool {
	return (b > 0 && sum < a) || (b < 0 && sum > a)
}

func overflowsSub(a, b, diff int64) bool {
	return (b < 0 && diff < a) || (b > 0 && diff > a)
}

// Concat implements `~`: each operand must be a String or numeric; numerics
// are stringified in canonical decimal form.
func Concat(parts []Value) (Value, error) {
	var sb []byte
	for _, p := range parts {
		switch p.Kind() {
		case KindString, KindInteger, KindFloat:
			sb = append(sb, p.Stringify()...)
		default:
			return Null, fmt.Errorf("'~' requires string or numeric operands, got %s", p.Kind())
		}
	}
	return String(string(sb)), nil
}

// NaN reports whether v is a Float NaN.
func NaN(v Value) bool {
	f, ok := v.AsFloat()
	return ok && math.IsNaN(f)
}
