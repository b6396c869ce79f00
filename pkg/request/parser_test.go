package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antalyabus/pkg/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected types.Query
	}{
		{
			name:     "stop only",
			input:    "10010",
			expected: types.Query{StopID: "10010", IntervalMinutes: 3},
		},
		{
			name:     "stop and route",
			input:    "10010 18",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", IntervalMinutes: 3},
		},
		{
			name:     "tracking with default interval",
			input:    "10010 18 t",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", Tracking: true, IntervalMinutes: 3},
		},
		{
			name:     "tracking with custom interval",
			input:    "10010 18 t 5",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", Tracking: true, IntervalMinutes: 5},
		},
		{
			name:     "third token is not the marker",
			input:    "10010 18 x 5",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", IntervalMinutes: 3},
		},
		{
			name:     "marker is case sensitive",
			input:    "10010 18 T",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", IntervalMinutes: 3},
		},
		{
			name:     "extra whitespace",
			input:    "  10010 \t 18   t  7 ",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", Tracking: true, IntervalMinutes: 7},
		},
		{
			name:     "tokens after the interval are ignored",
			input:    "10010 18 t 5 please",
			expected: types.Query{StopID: "10010", RouteSuffix: "18", Tracking: true, IntervalMinutes: 5},
		},
		{
			name:     "empty input",
			input:    "",
			expected: types.Query{IntervalMinutes: 3},
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: types.Query{IntervalMinutes: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParse_InvalidInterval(t *testing.T) {
	tests := []struct {
		name  string
		input string
		value string
	}{
		{name: "non numeric", input: "10010 18 t x", value: "x"},
		{name: "zero", input: "10010 18 t 0", value: "0"},
		{name: "negative", input: "10010 18 t -2", value: "-2"},
		{name: "fraction", input: "10010 18 t 1.5", value: "1.5"},
		{name: "validated without tracking", input: "10010 18 x abc", value: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var intervalErr *InvalidIntervalError
			require.True(t, errors.As(err, &intervalErr), "expected InvalidIntervalError, got %T", err)
			assert.Equal(t, tt.value, intervalErr.Value)
			assert.Contains(t, err.Error(), tt.value)
		})
	}
}

func TestParse_StopIDIsFirstToken(t *testing.T) {
	inputs := []string{"1", "abc def", "20000 VS18 t 4", "x y z w v"}
	for _, input := range inputs {
		q, err := Parse(input)
		if err != nil {
			continue
		}
		assert.Equal(t, strings.Fields(input)[0], q.StopID, "input %q", input)
		assert.Positive(t, q.IntervalMinutes, "input %q", input)
	}
}

func TestParse_IntervalIgnoredWithoutTracking(t *testing.T) {
	q, err := Parse("10010 18 x 9")
	require.NoError(t, err)
	assert.False(t, q.Tracking)
	assert.Equal(t, types.DefaultIntervalMinutes, q.IntervalMinutes)
}
