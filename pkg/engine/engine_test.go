package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/stedi/pkg/input"
	"github.com/walteh/stedi/pkg/plan"
)

func literalPlan(ops ...plan.Operation) *plan.Plan {
	p := plan.Default()
	p.Interp = plan.InterpLiteral
	p.Operations = ops
	return p
}

func regexPlan(ops ...plan.Operation) *plan.Plan {
	p := plan.Default()
	p.Operations = ops
	return p
}

func replaceOp(find, with string) plan.Operation {
	return plan.Operation{Kind: plan.OpReplace, Find: find, With: with}
}

func TestEngine_Transform(t *testing.T) {
	tests := []struct {
		name      string
		plan      *plan.Plan
		content   string
		want      string
		wantCount uint64
	}{
		{
			name:      "literal_replace_all",
			plan:      literalPlan(replaceOp("foo", "bar")),
			content:   "foo baz foo",
			want:      "bar baz bar",
			wantCount: 2,
		},
		{
			name:      "literal_no_match",
			plan:      literalPlan(replaceOp("zzz", "yyy")),
			content:   "abc",
			want:      "abc",
			wantCount: 0,
		},
		{
			name:      "identity_replacement_counts_but_does_not_modify",
			plan:      literalPlan(replaceOp("foo", "foo")),
			content:   "foo foo",
			want:      "foo foo",
			wantCount: 2,
		},
		{
			name:      "delete_removes_matches",
			plan:      literalPlan(plan.Operation{Kind: plan.OpDelete, Find: "l"}),
			content:   "hello",
			want:      "heo",
			wantCount: 2,
		},
		{
			name:      "insert_before_preserves_match",
			plan:      literalPlan(plan.Operation{Kind: plan.OpInsertBefore, Find: "world", With: ">> "}),
			content:   "hello world",
			want:      "hello >> world",
			wantCount: 1,
		},
		{
			name:      "insert_after_preserves_match",
			plan:      literalPlan(plan.Operation{Kind: plan.OpInsertAfter, Find: "hello", With: "!"}),
			content:   "hello world",
			want:      "hello! world",
			wantCount: 1,
		},
		{
			name: "operations_apply_in_declaration_order",
			plan: literalPlan(
				replaceOp("a", "b"),
				replaceOp("b", "c"),
			),
			content:   "a",
			want:      "c",
			wantCount: 2,
		},
		{
			name:      "regex_replace",
			plan:      regexPlan(replaceOp(`\d+`, "N")),
			content:   "a1 b22 c333",
			want:      "aN bN cN",
			wantCount: 3,
		},
		{
			name:      "per_op_limit_caps_replacements",
			plan:      literalPlan(plan.Operation{Kind: plan.OpReplace, Find: "x", With: "y", Limit: 2}),
			content:   "x x x x",
			want:      "y y x x",
			wantCount: 2,
		},
		{
			name: "per_item_limit_is_the_fallback",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("x", "y"))
				p.Limit = 3
				return p
			}(),
			content:   "x x x x",
			want:      "y y y x",
			wantCount: 3,
		},
		{
			name: "case_insensitive_literal",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("foo", "bar"))
				p.Case = plan.CaseInsensitive
				return p
			}(),
			content:   "FOO foo FoO",
			want:      "bar bar bar",
			wantCount: 3,
		},
		{
			name: "smart_case_lowercase_pattern_folds",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("foo", "bar"))
				p.Case = plan.CaseSmart
				return p
			}(),
			content:   "FOO foo",
			want:      "bar bar",
			wantCount: 2,
		},
		{
			name: "smart_case_uppercase_pattern_is_sensitive",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("Foo", "bar"))
				p.Case = plan.CaseSmart
				return p
			}(),
			content:   "FOO Foo foo",
			want:      "FOO bar foo",
			wantCount: 1,
		},
		{
			name: "word_boundary",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("cat", "dog"))
				p.Word = true
				return p
			}(),
			content:   "cat catalog concat cat",
			want:      "dog catalog concat dog",
			wantCount: 2,
		},
		{
			name: "line_range_restricts_matches",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("x", "y"))
				p.Range = &plan.LineRange{Start: 2, End: 3}
				return p
			}(),
			content:   "x\nx\nx\nx\n",
			want:      "x\ny\ny\nx\n",
			wantCount: 2,
		},
		{
			name: "open_ended_range",
			plan: func() *plan.Plan {
				p := literalPlan(replaceOp("x", "y"))
				p.Range = &plan.LineRange{Start: 3}
				return p
			}(),
			content:   "x\nx\nx\nx\n",
			want:      "x\nx\ny\ny\n",
			wantCount: 2,
		},
		{
			name: "multiline_insert_after_caret_prefixes_every_line",
			plan: func() *plan.Plan {
				p := regexPlan(plan.Operation{Kind: plan.OpInsertAfter, Find: "^", With: "// "})
				p.Multiline = true
				return p
			}(),
			content:   "one\ntwo",
			want:      "// one\n// two",
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := New(tt.plan)
			require.NoError(t, err)

			got, count, err := eng.Transform([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestEngine_Transform_CaptureExpansion(t *testing.T) {
	tests := []struct {
		name      string
		find      string
		with      string
		content   string
		want      string
		wantCount uint64
	}{
		{
			name:      "named_group",
			find:      `(?P<n>\d+)`,
			with:      "#${n}",
			content:   "item 42",
			want:      "item #42",
			wantCount: 1,
		},
		{
			name:      "numeric_group",
			find:      `(\w+)@(\w+)`,
			with:      "$2 at $1",
			content:   "user@host",
			want:      "host at user",
			wantCount: 1,
		},
		{
			name:      "braced_numeric_group",
			find:      `(\d+)`,
			with:      "${1}px",
			content:   "w=12",
			want:      "w=12px",
			wantCount: 1,
		},
		{
			name:      "double_dollar_is_literal",
			find:      `(\d+)`,
			with:      "$$$1",
			content:   "12",
			want:      "$12",
			wantCount: 1,
		},
		{
			name:      "group_zero_is_whole_match",
			find:      `\d+`,
			with:      "[$0]",
			content:   "a 7 b",
			want:      "a [7] b",
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := regexPlan(plan.Operation{Kind: plan.OpReplace, Find: tt.find, With: tt.with, Expand: true})
			eng, err := New(p)
			require.NoError(t, err)

			got, count, err := eng.Transform([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestEngine_New_CompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		plan    *plan.Plan
		wantErr string
	}{
		{
			name:    "ambiguous_capture_reference",
			plan:    regexPlan(plan.Operation{Kind: plan.OpReplace, Find: `(\d+)`, With: "$1foo", Expand: true}),
			wantErr: "ambiguous group reference",
		},
		{
			name:    "invalid_regex",
			plan:    regexPlan(replaceOp("(", "x")),
			wantErr: "invalid pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.plan)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEngine_Transform_AbsentGroupIsAnApplyError(t *testing.T) {
	tests := []struct {
		name    string
		find    string
		with    string
		wantErr string
	}{
		{
			name:    "unknown_numeric_group",
			find:    `(\d+)`,
			with:    "$2",
			wantErr: "no group 2",
		},
		{
			name:    "unknown_named_group",
			find:    `(?P<a>\d+)`,
			with:    "${b}",
			wantErr: `no group named "b"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := regexPlan(plan.Operation{Kind: plan.OpReplace, Find: tt.find, With: tt.with, Expand: true})
			eng, err := New(p)
			require.NoError(t, err) // the reference is well-formed, so compilation succeeds

			// the error only fires once the operation matches content
			got, count, err := eng.Transform([]byte("no digits here"))
			require.NoError(t, err)
			assert.Equal(t, "no digits here", string(got))
			assert.Equal(t, uint64(0), count)

			_, _, err = eng.Transform([]byte("item 42"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEngine_TransformSpans(t *testing.T) {
	t.Run("replaces_at_authoritative_spans_only", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		eng, err := New(p)
		require.NoError(t, err)

		// spans cover the first and third occurrence, not the second
		content := []byte("foo foo foo")
		spans := []input.Span{
			{Start: 0, Length: 3, Line: 1},
			{Start: 8, Length: 3, Line: 1},
		}

		got, count, err := eng.TransformSpans(content, spans)
		require.NoError(t, err)
		assert.Equal(t, "bar foo bar", string(got))
		assert.Equal(t, uint64(2), count)
	})

	t.Run("stale_span_fails_the_item", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		eng, err := New(p)
		require.NoError(t, err)

		// the producer saw "foo" at byte 10 but the file now has "fob"
		content := []byte("xxxxxxxxxx" + "fob")
		spans := []input.Span{{Start: 10, Length: 3, Line: 1}}

		_, _, err = eng.TransformSpans(content, spans)
		require.Error(t, err)
		var stale *StaleSpanError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, 10, stale.Offset)
	})

	t.Run("matching_span_bytes_replace_cleanly", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		eng, err := New(p)
		require.NoError(t, err)

		content := []byte("xxxxxxxxxx" + "foo" + "yy")
		spans := []input.Span{{Start: 10, Length: 3, Line: 1}}

		got, count, err := eng.TransformSpans(content, spans)
		require.NoError(t, err)
		assert.Equal(t, "xxxxxxxxxxbaryy", string(got))
		assert.Equal(t, uint64(1), count)
	})

	t.Run("offsets_shift_after_earlier_replacements", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "longer"))
		eng, err := New(p)
		require.NoError(t, err)

		content := []byte("foo mid foo")
		spans := []input.Span{
			{Start: 0, Length: 3, Line: 1},
			{Start: 8, Length: 3, Line: 1},
		}

		got, count, err := eng.TransformSpans(content, spans)
		require.NoError(t, err)
		assert.Equal(t, "longer mid longer", string(got))
		assert.Equal(t, uint64(2), count)
	})

	t.Run("regex_spans_expand_captures", func(t *testing.T) {
		p := regexPlan(plan.Operation{Kind: plan.OpReplace, Find: `(?P<n>\d+)`, With: "#${n}", Expand: true})
		eng, err := New(p)
		require.NoError(t, err)

		content := []byte("item 42")
		spans := []input.Span{{Start: 5, Length: 2, Line: 1}}

		got, count, err := eng.TransformSpans(content, spans)
		require.NoError(t, err)
		assert.Equal(t, "item #42", string(got))
		assert.Equal(t, uint64(1), count)
	})
}
