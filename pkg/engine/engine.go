// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine applies the plan's operation list to each input item,
// counting replacements and producing transformed content. Matching is
// strictly left-to-right by byte offset; each operation re-derives its
// candidates from the current content, not the content at acquisition.
package engine

import (
	"fmt"

	"github.com/walteh/stedi/pkg/input"
	"github.com/walteh/stedi/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

type compiledOp struct {
	op      plan.Operation
	matcher *Matcher
	tmpl    *template
	limit   int
}

// Engine holds the compiled operation list for one plan.
type Engine struct {
	plan *plan.Plan
	ops  []compiledOp
}

// New compiles every operation of the plan. Pattern errors and template
// syntax errors surface here, before any input is read; a reference to a
// group the pattern does not define surfaces at apply time.
func New(p *plan.Plan) (*Engine, error) {
	ops := make([]compiledOp, 0, len(p.Operations))
	for i, op := range p.Operations {
		m, err := NewMatcher(p, op.Find)
		if err != nil {
			return nil, errors.Errorf("operation %d: %w", i, err)
		}
		co := compiledOp{op: op, matcher: m, limit: op.Limit}
		if co.limit == 0 {
			co.limit = p.Limit
		}
		if op.Expand {
			if m.Regexp() == nil {
				return nil, errors.Errorf("operation %d: capture expansion requires a regex pattern", i)
			}
			// Only the reference syntax is checked here. References to
			// groups the pattern does not define fail the individual item
			// at apply time, once the operation actually matches content.
			tmpl, err := parseTemplate(op.With)
			if err != nil {
				return nil, errors.Errorf("operation %d: %w", i, err)
			}
			co.tmpl = tmpl
		}
		ops = append(ops, co)
	}
	return &Engine{plan: p, ops: ops}, nil
}

// Transform applies the operation list in declaration order over the whole
// content and returns the transformed bytes with the replacement count. A
// replacement referencing a capture group the pattern does not define is
// an error for this item.
func (e *Engine) Transform(content []byte) ([]byte, uint64, error) {
	current := content
	var total uint64
	for i := range e.ops {
		next, n, err := e.applyWhole(current, &e.ops[i])
		if err != nil {
			return nil, 0, err
		}
		current = next
		total += n
	}
	return current, total, nil
}

func (e *Engine) applyWhole(content []byte, co *compiledOp) ([]byte, uint64, error) {
	matches := co.matcher.Find(content)
	if len(matches) == 0 {
		return content, 0, nil
	}
	if co.tmpl != nil {
		if err := co.tmpl.validate(co.matcher.Regexp()); err != nil {
			return nil, 0, err
		}
	}

	var ix *lineIndex
	if e.plan.Range != nil {
		ix = buildLineIndex(content)
	}

	out := make([]byte, 0, len(content))
	last := 0
	var count uint64
	for _, m := range matches {
		if co.limit > 0 && count >= uint64(co.limit) {
			break
		}
		if ix != nil && !inRange(e.plan.Range, ix.lineOf(m[0])) {
			continue
		}
		out = append(out, content[last:m[0]]...)
		out = e.appendEdit(out, content, m, co)
		last = m[1]
		count++
	}
	if count == 0 {
		return content, 0, nil
	}
	out = append(out, content[last:]...)
	return out, count, nil
}

// appendEdit writes the edited form of one match. Replace substitutes the
// replacement (expanded when requested), delete substitutes nothing, and
// the insert kinds keep the matched text with the insertion adjacent.
func (e *Engine) appendEdit(dst, content []byte, m []int, co *compiledOp) []byte {
	matched := content[m[0]:m[1]]
	switch co.op.Kind {
	case plan.OpReplace:
		if co.tmpl != nil {
			return co.tmpl.expand(dst, content, m, co.matcher.Regexp())
		}
		return append(dst, co.op.With...)
	case plan.OpDelete:
		return dst
	case plan.OpInsertBefore:
		dst = append(dst, co.op.With...)
		return append(dst, matched...)
	case plan.OpInsertAfter:
		dst = append(dst, matched...)
		return append(dst, co.op.With...)
	default:
		return append(dst, matched...)
	}
}

// StaleSpanError reports a match span whose bytes no longer equal any
// operation's find pattern: the upstream producer saw stale content.
type StaleSpanError struct {
	Offset int
	Length int
}

func (e *StaleSpanError) Error() string {
	return fmt.Sprintf("stale match span at byte %d (length %d): content changed since the match was produced", e.Offset, e.Length)
}

type spanState struct {
	start    int
	length   int
	consumed bool
}

// TransformSpans applies the operation list constrained to the given
// authoritative spans; no scanning occurs. Every span must verify against
// the acquired content for at least one operation, otherwise the item
// fails with a stale-span error. Each verifying span is consumed by the
// first operation that matches it, in left-to-right order.
func (e *Engine) TransformSpans(content []byte, spans []input.Span) ([]byte, uint64, error) {
	states := make([]spanState, len(spans))
	for i, s := range spans {
		states[i] = spanState{start: int(s.Start), length: int(s.Length)}
	}

	// Staleness check against the acquired content, before any edit.
	for _, st := range states {
		verified := false
		for oi := range e.ops {
			if _, ok := e.ops[oi].matcher.Verify(content, st.start, st.start+st.length); ok {
				verified = true
				break
			}
		}
		if !verified {
			return nil, 0, &StaleSpanError{Offset: st.start, Length: st.length}
		}
	}

	current := content
	var total uint64
	for oi := range e.ops {
		co := &e.ops[oi]
		out := make([]byte, 0, len(current))
		last := 0
		var count uint64
		deltas := make([]int, len(states))
		for si := range states {
			st := &states[si]
			if st.consumed {
				continue
			}
			if co.limit > 0 && count >= uint64(co.limit) {
				break
			}
			m, ok := co.matcher.Verify(current, st.start, st.start+st.length)
			if !ok {
				continue
			}
			if co.tmpl != nil && count == 0 {
				if err := co.tmpl.validate(co.matcher.Regexp()); err != nil {
					return nil, 0, err
				}
			}
			out = append(out, current[last:st.start]...)
			before := len(out)
			out = e.appendEdit(out, current, m, co)
			last = st.start + st.length
			st.consumed = true
			count++

			deltas[si] = len(out) - before - st.length
		}
		if count > 0 {
			out = append(out, current[last:]...)
			current = out
		}
		// The pass reads the unedited content; only afterwards do later span
		// offsets move by the splice deltas of the edits before them.
		shift := 0
		for si := range states {
			states[si].start += shift
			shift += deltas[si]
		}
		total += count
	}

	return current, total, nil
}
