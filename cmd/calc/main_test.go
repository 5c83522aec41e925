package main

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "multiply", args: []string{"multiply", "2", "10", "4", "7"}, want: "Your multiply operation result = 560\n"},
		{name: "sum", args: []string{"sum", "2", "2", "4", "0", "-1"}, want: "Your sum operation result = 7\n"},
		{name: "summation", args: []string{"summation", "1.5", "2"}, want: "Your summation operation result = 3.5\n"},
		{name: "sum of nothing", args: []string{"sum"}, want: "Your sum operation result = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.NoError(t, run(tt.args, &stdout, &stderr))
			assert.Equal(t, tt.want, stdout.String())
			assert.Empty(t, stderr.String())
		})
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantErr   string
		wantUsage bool
	}{
		{name: "no operation", args: nil, wantErr: "an operation is required", wantUsage: true},
		{name: "unknown operation", args: []string{"divide", "4", "2"}, wantErr: `unknown operation "divide"`, wantUsage: true},
		{name: "bad number", args: []string{"sum", "2", "two"}, wantErr: `invalid number "two"`},
		{name: "unknown flag", args: []string{"-x"}, wantErr: "failed to parse flags", wantUsage: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, stdout.String())
			if tt.wantUsage {
				assert.Contains(t, stderr.String(), "Usage: calc <sum|multiply> <values...>")
			}
		})
	}
}

func TestRunBadNumberWrapsParseError(t *testing.T) {
	err := run([]string{"multiply", "1e"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}
