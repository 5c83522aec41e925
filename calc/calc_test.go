package calc

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiply(t *testing.T) {
	assert.Equal(t, 560, Multiply([]int{2, 10, 4, 7}))
	assert.Equal(t, 0, Multiply([]int{3, 0, 9}))
	assert.Equal(t, 1, Multiply([]int{}))
	assert.InDelta(t, -1.25, Multiply([]float64{0.5, -2.5}), 1e-9)
}

func TestSummation(t *testing.T) {
	assert.Equal(t, 7, Summation([]int{2, 2, 4, 0, -1}))
	assert.Equal(t, 0, Summation[int](nil))
	assert.InDelta(t, 3.75, Summation([]float64{1.5, 2.25}), 1e-9)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintResult(&buf, "multiply", Multiply([]int{2, 10, 4, 7})))
	assert.Equal(t, "Your multiply operation result = 560\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintResult(&buf, "summation", 7.5))
	assert.Equal(t, "Your summation operation result = 7.5\n", buf.String())
}

func TestParseValues(t *testing.T) {
	values, err := ParseValues([]string{"2", "2", "4", "0", "-1"})
	require.NoError(t, err)
	assert.Equal(t, 7.0, Summation(values))

	_, err = ParseValues([]string{"2", "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"abc"`)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}
