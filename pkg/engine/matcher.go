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

package engine

import (
	"bytes"
	"regexp"
	"sort"

	"github.com/walteh/stedi/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

// Matcher finds candidate spans for one find pattern. Plain literal
// patterns take a bytes.Index fast path; anything needing case folding,
// word boundaries or regex semantics compiles to RE2, which keeps matching
// linear in the input length.
type Matcher struct {
	re       *regexp.Regexp
	anchored *regexp.Regexp
	lit      []byte
}

// NewMatcher builds a matcher for find under the plan's interpretation,
// case, word and line-mode settings.
func NewMatcher(p *plan.Plan, find string) (*Matcher, error) {
	if p.Interp == plan.InterpLiteral && !p.CaseFold(find) && !p.Word {
		return &Matcher{lit: []byte(find)}, nil
	}

	src := p.RegexSource(find)
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, errors.Errorf("invalid pattern %q: %w", find, err)
	}
	anchored, err := regexp.Compile(`\A(?:` + src + `)\z`)
	if err != nil {
		return nil, errors.Errorf("invalid pattern %q: %w", find, err)
	}
	return &Matcher{re: re, anchored: anchored}, nil
}

// Regexp exposes the compiled pattern for capture-template validation;
// nil for plain literal matchers.
func (m *Matcher) Regexp() *regexp.Regexp { return m.re }

// Find returns every non-overlapping match in left-to-right byte order as
// submatch index slices; literal matches carry just the overall pair.
func (m *Matcher) Find(content []byte) [][]int {
	if m.re != nil {
		return m.re.FindAllSubmatchIndex(content, -1)
	}
	var out [][]int
	for off := 0; off <= len(content)-len(m.lit); {
		i := bytes.Index(content[off:], m.lit)
		if i < 0 {
			break
		}
		start := off + i
		end := start + len(m.lit)
		out = append(out, []int{start, end})
		off = end
	}
	return out
}

// Verify checks that content[start:end] is exactly one occurrence of the
// pattern, returning the submatch indices in content coordinates. Used in
// match-span mode where the authoritative spans replace scanning.
func (m *Matcher) Verify(content []byte, start, end int) ([]int, bool) {
	if start < 0 || end < start || end > len(content) {
		return nil, false
	}
	seg := content[start:end]
	if m.re == nil {
		if !bytes.Equal(seg, m.lit) {
			return nil, false
		}
		return []int{start, end}, true
	}
	idx := m.anchored.FindSubmatchIndex(seg)
	if idx == nil {
		return nil, false
	}
	abs := make([]int, len(idx))
	for i, v := range idx {
		if v < 0 {
			abs[i] = -1
			continue
		}
		abs[i] = v + start
	}
	return abs, true
}

// lineIndex maps byte offsets to 1-based line numbers. Built lazily with
// one linear pass when a line range is configured.
type lineIndex struct {
	starts []int
}

func buildLineIndex(content []byte) *lineIndex {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

// lineOf returns the 1-based line containing the byte offset.
func (ix *lineIndex) lineOf(offset int) int {
	i := sort.SearchInts(ix.starts, offset+1)
	return i
}

// inRange reports whether the 1-based line falls inside the plan range.
func inRange(r *plan.LineRange, line int) bool {
	if line < r.Start {
		return false
	}
	if r.End != 0 && line > r.End {
		return false
	}
	return true
}
