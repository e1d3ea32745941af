// Package derive implements the four derived-stat computers (Composite,
// Equation, PercentChange, FinalEquation) and the pipeline that orders
// them.
package derive

import "fmt"

// number is a small numeric value that remembers whether it originated as
// an integer or a float, so Equation's null-substitution can produce "a
// zero of the correct numeric type".
type number struct {
	isInt bool
	i     int64
	f     float64
}

func numberFrom(v any) (number, bool) {
	switch x := v.(type) {
	case int64:
		return number{isInt: true, i: x}, true
	case int:
		return number{isInt: true, i: int64(x)}, true
	case float64:
		return number{isInt: false, f: x}, true
	default:
		return number{}, false
	}
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

// zeroLike returns a zero-valued number of the same concrete type as n,
// i.e. the result of "x - x" for some non-null x).
func zeroLike(n number) number {
	return number{isInt: n.isInt}
}

func (n number) toAny() any {
	if n.isInt {
		return n.i
	}
	return n.f
}

func (n number) add(o number) number {
	if n.isInt && o.isInt {
		return number{isInt: true, i: n.i + o.i}
	}
	return number{f: n.float() + o.float()}
}

func (n number) sub(o number) number {
	if n.isInt && o.isInt {
		return number{isInt: true, i: n.i - o.i}
	}
	return number{f: n.float() - o.float()}
}

func (n number) mul(o number) number {
	if n.isInt && o.isInt {
		return number{isInt: true, i: n.i * o.i}
	}
	return number{f: n.float() * o.float()}
}

func (n number) div(o number) (number, error) {
	if o.float() == 0 {
		return number{}, fmt.Errorf("division by zero")
	}
	if n.isInt && o.isInt && n.i%o.i == 0 {
		return number{isInt: true, i: n.i / o.i}, nil
	}
	return number{f: n.float() / o.float()}, nil
}

func (n number) neg() number {
	if n.isInt {
		return number{isInt: true, i: -n.i}
	}
	return number{f: -n.f}
}

// meanTime computes the arithmetic mean of a slice of unix timestamps,
// truncated to a whole second by integer division. It reports false for
// an empty slice.
func meanTime(ts []int64) (int64, bool) {
	if len(ts) == 0 {
		return 0, false
	}
	var sum int64
	for _, t := range ts {
		sum += t
	}
	return sum / int64(len(ts)), true
}
