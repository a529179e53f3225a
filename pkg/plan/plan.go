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

// Package plan defines the normalized execution plan and the normalization
// from invocation flags plus an optional plan document into a single Plan.
package plan

import (
	"os"
	"regexp"
	"strings"
	"unicode"
)

// 🔎 Interp selects how find patterns are interpreted.
type Interp string

const (
	InterpLiteral Interp = "literal"
	InterpRegex   Interp = "regex"
)

// 🔠 CaseMode selects case sensitivity for matching.
// CaseSmart is insensitive unless the find pattern contains an uppercase
// codepoint.
type CaseMode string

const (
	CaseSensitive   CaseMode = "sensitive"
	CaseInsensitive CaseMode = "insensitive"
	CaseSmart       CaseMode = "smart"
)

// 🔒 Transaction selects the commit scope.
type Transaction string

const (
	TransactionAll  Transaction = "all"
	TransactionFile Transaction = "file"
)

// 🔗 Symlinks selects how symbolic link targets are treated.
type Symlinks string

const (
	SymlinksFollow Symlinks = "follow"
	SymlinksSkip   Symlinks = "skip"
	SymlinksError  Symlinks = "error"
)

// 💾 BinaryMode selects how binary inputs are treated.
type BinaryMode string

const (
	BinarySkip  BinaryMode = "skip"
	BinaryError BinaryMode = "error"
)

// Permissions describes how the mode bits of a rewritten target are chosen.
// Only mode bits are covered: ownership and extended attributes are never
// copied to the staged file.
type Permissions struct {
	Preserve bool
	Mode     os.FileMode // used when Preserve is false
}

// LineRange restricts matching to a 1-based inclusive line range.
// End == 0 means the range is open-ended.
type LineRange struct {
	Start int
	End   int
}

// OpKind discriminates the edit primitives.
type OpKind string

const (
	OpReplace      OpKind = "replace"
	OpDelete       OpKind = "delete"
	OpInsertBefore OpKind = "insert_before"
	OpInsertAfter  OpKind = "insert_after"
)

// Operation is one edit primitive. With holds the replacement text for
// replace and the inserted text for the insert kinds; it is empty for
// delete. Limit == 0 inherits the plan's per-item limit.
type Operation struct {
	Kind   OpKind
	Find   string
	With   string
	Limit  int
	Expand bool
}

// Policies are the post-execution constraints that gate the commit.
// Expect < 0 means no exact-count expectation.
type Policies struct {
	RequireMatch bool
	Expect       int
	FailOnChange bool
}

// Plan is the fully-normalized, immutable description of one run. It is
// built once by Normalize and shared by reference; no component mutates it
// afterwards.
type Plan struct {
	Files      []string
	Operations []Operation

	Interp            Interp
	Case              CaseMode
	Word              bool
	Multiline         bool
	DotMatchesNewline bool

	// Limit caps replacements per input item. 0 means unbounded.
	Limit int
	Range *LineRange

	GlobInclude []string
	GlobExclude []string

	Transaction Transaction
	Symlinks    Symlinks
	Binary      BinaryMode
	Permissions Permissions

	DryRun       bool
	NoWrite      bool
	ValidateOnly bool

	Policies Policies
}

// Default returns a Plan carrying every default value. Normalize starts
// from this and overlays document fields, then invocation flags.
func Default() *Plan {
	return &Plan{
		Interp:      InterpRegex,
		Case:        CaseSensitive,
		Transaction: TransactionAll,
		Symlinks:    SymlinksFollow,
		Binary:      BinarySkip,
		Permissions: Permissions{Preserve: true},
		Policies:    Policies{Expect: -1},
	}
}

// WritesSuppressed reports whether any safety flag forbids touching the
// filesystem.
func (p *Plan) WritesSuppressed() bool {
	return p.DryRun || p.NoWrite || p.ValidateOnly
}

// CaseFold reports whether matching for the given find pattern is
// case-insensitive under the plan's case mode.
func (p *Plan) CaseFold(find string) bool {
	switch p.Case {
	case CaseInsensitive:
		return true
	case CaseSmart:
		return !strings.ContainsFunc(find, unicode.IsUpper)
	default:
		return false
	}
}

// RegexSource assembles the regex source for a find pattern under the
// plan's interpretation, case, word, multiline and dot-matches-newline
// settings. Callers compile the result; literal patterns are quoted first.
func (p *Plan) RegexSource(find string) string {
	src := find
	if p.Interp == InterpLiteral {
		src = regexp.QuoteMeta(find)
	}
	if p.Word {
		src = `\b(?:` + src + `)\b`
	}
	var flags strings.Builder
	if p.CaseFold(find) {
		flags.WriteByte('i')
	}
	if p.Multiline {
		flags.WriteByte('m')
	}
	if p.DotMatchesNewline {
		flags.WriteByte('s')
	}
	if flags.Len() > 0 {
		src = "(?" + flags.String() + ")" + src
	}
	return src
}
