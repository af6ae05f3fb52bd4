package llm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/skillmatrix/internal/llm"
)

type decision struct {
	Call  string `json:"call"`
	Reply string `json:"reply"`
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding whitespace", in: "\n\n  {\"a\":1}  \n", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, llm.StripFences(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("fenced object", func(t *testing.T) {
		t.Parallel()

		var d decision
		err := llm.DecodeJSON("decision", "```json\n{\"call\":\"grading\",\"reply\":\"\"}\n```", &d)
		require.NoError(t, err)
		assert.Equal(t, "grading", d.Call)
	})

	t.Run("prose is a format error", func(t *testing.T) {
		t.Parallel()

		var d decision
		err := llm.DecodeJSON("decision", "Thought: I should call grading\nCall: grading", &d)
		require.Error(t, err)

		var formatErr *llm.FormatError
		require.True(t, errors.As(err, &formatErr))
		assert.Equal(t, "decision", formatErr.Schema)
		assert.Contains(t, formatErr.Raw, "Call: grading")
	})

	t.Run("empty is a format error", func(t *testing.T) {
		t.Parallel()

		var d decision
		err := llm.DecodeJSON("decision", "   ", &d)

		var formatErr *llm.FormatError
		require.ErrorAs(t, err, &formatErr)
	})
}
