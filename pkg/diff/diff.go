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

// Package diff renders unified diffs between acquired and transformed
// content.
package diff

import (
	"bytes"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"gitlab.com/tozd/go/errors"
)

// Unified computes a unified diff between before and after, labeled with
// path on both sides. When either side is not valid UTF-8 the diff is
// suppressed and isBinary is true. Equal content yields an empty diff.
func Unified(path string, before, after []byte) (text string, isBinary bool, err error) {
	if bytes.Equal(before, after) {
		return "", false, nil
	}
	if !utf8.Valid(before) || !utf8.Valid(after) {
		return "", true, nil
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err = difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", false, errors.Errorf("rendering diff: %w", err)
	}
	return text, false, nil
}
