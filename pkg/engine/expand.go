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
	"regexp"
	"strconv"

	"gitlab.com/tozd/go/errors"
)

// A replacement template supports $N, ${N}, $name and ${name} references
// drawn from the most recent match, and $$ for a literal dollar. An
// unbraced reference whose digits are followed by more word characters is
// ambiguous and rejected at compile time; write ${1}foo instead of $1foo.

type segKind int

const (
	segLiteral segKind = iota
	segGroupNum
	segGroupName
)

type templateSeg struct {
	kind segKind
	lit  []byte
	num  int
	name string
}

type template struct {
	segs []templateSeg
}

// parseTemplate splits the replacement string into literal runs and group
// references, validating ambiguity as it goes.
func parseTemplate(s string) (*template, error) {
	t := &template{}
	var lit []byte

	flushLit := func() {
		if len(lit) > 0 {
			t.segs = append(t.segs, templateSeg{kind: segLiteral, lit: lit})
			lit = nil
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			lit = append(lit, c)
			i++
			continue
		}
		if i+1 >= len(s) {
			// trailing bare dollar is literal
			lit = append(lit, '$')
			i++
			continue
		}
		next := s[i+1]
		switch {
		case next == '$':
			lit = append(lit, '$')
			i += 2

		case next == '{':
			end := -1
			for j := i + 2; j < len(s); j++ {
				if s[j] == '}' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, errors.Errorf("unterminated group reference %q", s[i:])
			}
			name := s[i+2 : end]
			if name == "" {
				return nil, errors.Errorf("empty group reference ${}")
			}
			flushLit()
			t.segs = append(t.segs, refSeg(name))
			i = end + 1

		case isCaptureChar(next):
			j := i + 1
			for j < len(s) && isCaptureChar(s[j]) {
				j++
			}
			name := s[i+1 : j]
			if d := leadingDigits(name); d > 0 && d < len(name) {
				return nil, errors.Errorf(
					"ambiguous group reference $%s followed by %q; use ${%s}%s",
					name[:d], name[d:], name[:d], name[d:])
			}
			flushLit()
			t.segs = append(t.segs, refSeg(name))
			i = j

		default:
			// dollar before a non-reference character is literal
			lit = append(lit, '$')
			i++
		}
	}
	flushLit()
	return t, nil
}

func refSeg(name string) templateSeg {
	if num, err := strconv.Atoi(name); err == nil {
		return templateSeg{kind: segGroupNum, num: num}
	}
	return templateSeg{kind: segGroupName, name: name}
}

func isCaptureChar(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}

func leadingDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

// validate checks every reference against the compiled pattern. $0 is the
// whole match.
func (t *template) validate(re *regexp.Regexp) error {
	names := make(map[string]bool, len(re.SubexpNames()))
	for _, n := range re.SubexpNames() {
		if n != "" {
			names[n] = true
		}
	}
	for _, seg := range t.segs {
		switch seg.kind {
		case segGroupNum:
			if seg.num > re.NumSubexp() {
				return errors.Errorf("pattern has no group %d", seg.num)
			}
		case segGroupName:
			if !names[seg.name] {
				return errors.Errorf("pattern has no group named %q", seg.name)
			}
		}
	}
	return nil
}

// expand appends the rendered template to dst using the submatch indices
// of the most recent match. A group that exists but did not participate in
// the match expands to nothing.
func (t *template) expand(dst, content []byte, match []int, re *regexp.Regexp) []byte {
	group := func(i int) []byte {
		if 2*i+1 >= len(match) || match[2*i] < 0 {
			return nil
		}
		return content[match[2*i]:match[2*i+1]]
	}
	for _, seg := range t.segs {
		switch seg.kind {
		case segLiteral:
			dst = append(dst, seg.lit...)
		case segGroupNum:
			dst = append(dst, group(seg.num)...)
		case segGroupName:
			for i, n := range re.SubexpNames() {
				if n == seg.name {
					dst = append(dst, group(i)...)
					break
				}
			}
		}
	}
	return dst
}
