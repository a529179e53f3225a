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

package plan

import (
	"os"
	"regexp"
	"strconv"

	"gitlab.com/tozd/go/errors"
)

// 🎛️ Overlay carries the invocation-time arguments. Pointer fields are set
// only for flags the caller actually passed, so the overlay never clobbers
// a document value with a default.
type Overlay struct {
	Find    *string
	Replace *string
	Files   []string

	Literal           *bool
	Case              *CaseMode
	Word              *bool
	Multiline         *bool
	DotMatchesNewline *bool

	Limit *int
	Range *LineRange

	GlobInclude []string
	GlobExclude []string

	Transaction *Transaction
	Symlinks    *Symlinks
	Binary      *BinaryMode
	Permissions *string

	DryRun       *bool
	NoWrite      *bool
	ValidateOnly *bool

	RequireMatch *bool
	Expect       *int
	FailOnChange *bool
}

// Normalize merges an optional plan document with the invocation overlay
// into a single validated Plan, applying precedence
// flags > document > defaults field by field. The returned Plan is never
// mutated again.
func Normalize(doc *Document, ov *Overlay) (*Plan, error) {
	p := Default()

	if doc != nil {
		if err := applyDocument(p, doc); err != nil {
			return nil, err
		}
	}
	if ov != nil {
		if err := applyOverlay(p, ov); err != nil {
			return nil, err
		}
	}

	if p.ValidateOnly {
		p.DryRun = true
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func applyDocument(p *Plan, doc *Document) error {
	p.Files = append(p.Files, doc.Files...)

	for i, od := range doc.Operations {
		op, err := operationFromDoc(od)
		if err != nil {
			return errors.Errorf("operation %d: %w", i, err)
		}
		p.Operations = append(p.Operations, op)
	}

	if doc.Literal != nil && *doc.Literal {
		p.Interp = InterpLiteral
	}
	if doc.Case != nil {
		c, err := ParseCase(*doc.Case)
		if err != nil {
			return err
		}
		p.Case = c
	}
	if doc.Word != nil {
		p.Word = *doc.Word
	}
	if doc.Multiline != nil {
		p.Multiline = *doc.Multiline
	}
	if doc.DotMatchesNewline != nil {
		p.DotMatchesNewline = *doc.DotMatchesNewline
	}
	if doc.Limit != nil {
		p.Limit = *doc.Limit
	}
	if doc.Range != nil {
		r := LineRange{Start: doc.Range.Start}
		if doc.Range.End != nil {
			r.End = *doc.Range.End
		}
		p.Range = &r
	}
	p.GlobInclude = append(p.GlobInclude, doc.GlobInclude...)
	p.GlobExclude = append(p.GlobExclude, doc.GlobExclude...)

	if doc.Transaction != nil {
		t, err := ParseTransaction(*doc.Transaction)
		if err != nil {
			return err
		}
		p.Transaction = t
	}
	if doc.Symlinks != nil {
		s, err := ParseSymlinks(*doc.Symlinks)
		if err != nil {
			return err
		}
		p.Symlinks = s
	}
	if doc.Binary != nil {
		b, err := ParseBinary(*doc.Binary)
		if err != nil {
			return err
		}
		p.Binary = b
	}
	if doc.Permissions != nil {
		perms, err := ParsePermissions(*doc.Permissions)
		if err != nil {
			return err
		}
		p.Permissions = perms
	}

	if doc.DryRun != nil {
		p.DryRun = *doc.DryRun
	}
	if doc.NoWrite != nil {
		p.NoWrite = *doc.NoWrite
	}
	if doc.ValidateOnly != nil {
		p.ValidateOnly = *doc.ValidateOnly
	}
	if doc.RequireMatch != nil {
		p.Policies.RequireMatch = *doc.RequireMatch
	}
	if doc.Expect != nil {
		if *doc.Expect < 0 {
			return errors.Errorf("expect cannot be negative")
		}
		p.Policies.Expect = *doc.Expect
	}
	if doc.FailOnChange != nil {
		p.Policies.FailOnChange = *doc.FailOnChange
	}
	return nil
}

func applyOverlay(p *Plan, ov *Overlay) error {
	if len(ov.Files) > 0 {
		p.Files = ov.Files
	}
	if ov.Find != nil {
		with := ""
		if ov.Replace != nil {
			with = *ov.Replace
		}
		op := Operation{Kind: OpReplace, Find: *ov.Find, With: with}
		if ov.Limit != nil {
			op.Limit = *ov.Limit
		}
		p.Operations = []Operation{op}
	}

	if ov.Literal != nil {
		if *ov.Literal {
			p.Interp = InterpLiteral
		} else {
			p.Interp = InterpRegex
		}
	}
	if ov.Case != nil {
		p.Case = *ov.Case
	}
	if ov.Word != nil {
		p.Word = *ov.Word
	}
	if ov.Multiline != nil {
		p.Multiline = *ov.Multiline
	}
	if ov.DotMatchesNewline != nil {
		p.DotMatchesNewline = *ov.DotMatchesNewline
	}
	if ov.Limit != nil {
		p.Limit = *ov.Limit
	}
	if ov.Range != nil {
		r := *ov.Range
		p.Range = &r
	}
	if len(ov.GlobInclude) > 0 {
		p.GlobInclude = ov.GlobInclude
	}
	if len(ov.GlobExclude) > 0 {
		p.GlobExclude = ov.GlobExclude
	}
	if ov.Transaction != nil {
		p.Transaction = *ov.Transaction
	}
	if ov.Symlinks != nil {
		p.Symlinks = *ov.Symlinks
	}
	if ov.Binary != nil {
		p.Binary = *ov.Binary
	}
	if ov.Permissions != nil {
		perms, err := ParsePermissions(*ov.Permissions)
		if err != nil {
			return err
		}
		p.Permissions = perms
	}
	if ov.DryRun != nil {
		p.DryRun = *ov.DryRun
	}
	if ov.NoWrite != nil {
		p.NoWrite = *ov.NoWrite
	}
	if ov.ValidateOnly != nil {
		p.ValidateOnly = *ov.ValidateOnly
	}
	if ov.RequireMatch != nil {
		p.Policies.RequireMatch = *ov.RequireMatch
	}
	if ov.Expect != nil {
		if *ov.Expect < 0 {
			return errors.Errorf("expect cannot be negative")
		}
		p.Policies.Expect = *ov.Expect
	}
	if ov.FailOnChange != nil {
		p.Policies.FailOnChange = *ov.FailOnChange
	}
	return nil
}

func operationFromDoc(od OperationDoc) (Operation, error) {
	op := Operation{Find: od.Find}
	switch OpKind(od.Type) {
	case OpReplace:
		op.Kind = OpReplace
		if od.With == nil {
			return op, errors.Errorf("replace operation requires \"with\"")
		}
		op.With = *od.With
	case OpDelete:
		op.Kind = OpDelete
	case OpInsertBefore, OpInsertAfter:
		op.Kind = OpKind(od.Type)
		if od.Text == nil {
			return op, errors.Errorf("%s operation requires \"text\"", od.Type)
		}
		op.With = *od.Text
	default:
		return op, errors.Errorf("unknown operation type %q", od.Type)
	}
	if od.Limit != nil {
		op.Limit = *od.Limit
	}
	if od.Expand != nil {
		op.Expand = *od.Expand
	}
	return op, nil
}

// ParseCase validates a case mode name.
func ParseCase(s string) (CaseMode, error) {
	switch CaseMode(s) {
	case CaseSensitive, CaseInsensitive, CaseSmart:
		return CaseMode(s), nil
	}
	return "", errors.Errorf("unknown case mode %q", s)
}

// ParseTransaction validates a transaction mode name.
func ParseTransaction(s string) (Transaction, error) {
	switch Transaction(s) {
	case TransactionAll, TransactionFile:
		return Transaction(s), nil
	}
	return "", errors.Errorf("unknown transaction mode %q", s)
}

// ParseSymlinks validates a symlink policy name.
func ParseSymlinks(s string) (Symlinks, error) {
	switch Symlinks(s) {
	case SymlinksFollow, SymlinksSkip, SymlinksError:
		return Symlinks(s), nil
	}
	return "", errors.Errorf("unknown symlink policy %q", s)
}

// ParseBinary validates a binary policy name.
func ParseBinary(s string) (BinaryMode, error) {
	switch BinaryMode(s) {
	case BinarySkip, BinaryError:
		return BinaryMode(s), nil
	}
	return "", errors.Errorf("unknown binary policy %q", s)
}

// ParsePermissions parses "preserve" or a three-digit octal mode such as
// "644" (an optional leading zero is tolerated).
func ParsePermissions(s string) (Permissions, error) {
	if s == "preserve" || s == "" {
		return Permissions{Preserve: true}, nil
	}
	digits := s
	if len(digits) == 4 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) != 3 {
		return Permissions{}, errors.Errorf("invalid permissions %q: want three octal digits", s)
	}
	mode, err := strconv.ParseUint(digits, 8, 32)
	if err != nil {
		return Permissions{}, errors.Errorf("invalid permissions %q: %w", s, err)
	}
	return Permissions{Mode: os.FileMode(mode)}, nil
}

func validate(p *Plan) error {
	if len(p.Operations) == 0 {
		return errors.Errorf("no operations specified")
	}
	for i, op := range p.Operations {
		if op.Find == "" {
			return errors.Errorf("operation %d: empty find pattern", i)
		}
		if op.Expand && p.Interp == InterpLiteral {
			return errors.Errorf("operation %d: capture expansion requires regex interpretation", i)
		}
		if op.Expand && op.Kind != OpReplace {
			return errors.Errorf("operation %d: capture expansion is only valid for replace", i)
		}
		if _, err := regexp.Compile(p.RegexSource(op.Find)); err != nil {
			return errors.Errorf("operation %d: invalid pattern: %w", i, err)
		}
		if op.Limit < 0 {
			return errors.Errorf("operation %d: negative limit", i)
		}
	}
	if p.Limit < 0 {
		return errors.Errorf("negative replacement limit")
	}
	if p.Range != nil {
		if p.Range.Start < 1 {
			return errors.Errorf("line range start must be at least 1")
		}
		if p.Range.End != 0 && p.Range.End < p.Range.Start {
			return errors.Errorf("line range end %d is before start %d", p.Range.End, p.Range.Start)
		}
	}
	return nil
}
