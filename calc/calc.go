// Package calc holds the small arithmetic helpers used by the calc command.
package calc

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/exp/constraints"
)

// Number is any integer or floating point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Multiply returns the product of values. An empty slice yields 1.
func Multiply[T Number](values []T) T {
	var product T = 1
	for _, v := range values {
		product *= v
	}
	return product
}

// Summation returns the sum of values.
func Summation[T Number](values []T) T {
	var sum T
	for _, v := range values {
		sum += v
	}
	return sum
}

// PrintResult writes the result line for op to w.
func PrintResult(w io.Writer, op string, result any) error {
	_, err := fmt.Fprintf(w, "Your %s operation result = %v\n", op, result)
	return err
}

// ParseValues converts command line arguments to numbers.
func ParseValues(args []string) ([]float64, error) {
	values := make([]float64, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", arg, err)
		}
		values = append(values, v)
	}
	return values, nil
}
