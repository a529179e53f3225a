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

// 📄 Document is the parsed form of a plan document before normalization.
// Pointer fields distinguish "absent" from a zero value so that precedence
// (flags > document > defaults) can be applied field by field.
type Document struct {
	Files      []string       `json:"files" yaml:"files"`
	Operations []OperationDoc `json:"operations" yaml:"operations"`

	Literal           *bool   `json:"literal,omitempty" yaml:"literal,omitempty"`
	Case              *string `json:"case,omitempty" yaml:"case,omitempty"`
	Word              *bool   `json:"word,omitempty" yaml:"word,omitempty"`
	Multiline         *bool   `json:"multiline,omitempty" yaml:"multiline,omitempty"`
	DotMatchesNewline *bool   `json:"dot_matches_newline,omitempty" yaml:"dot_matches_newline,omitempty"`

	Limit *int      `json:"limit,omitempty" yaml:"limit,omitempty"`
	Range *RangeDoc `json:"range,omitempty" yaml:"range,omitempty"`

	GlobInclude []string `json:"glob_include,omitempty" yaml:"glob_include,omitempty"`
	GlobExclude []string `json:"glob_exclude,omitempty" yaml:"glob_exclude,omitempty"`

	Transaction *string `json:"transaction,omitempty" yaml:"transaction,omitempty"`
	Symlinks    *string `json:"symlinks,omitempty" yaml:"symlinks,omitempty"`
	Binary      *string `json:"binary,omitempty" yaml:"binary,omitempty"`

	// Permissions is "preserve" or a three-digit octal like "644".
	Permissions *string `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	DryRun       *bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	NoWrite      *bool `json:"no_write,omitempty" yaml:"no_write,omitempty"`
	ValidateOnly *bool `json:"validate_only,omitempty" yaml:"validate_only,omitempty"`

	RequireMatch *bool `json:"require_match,omitempty" yaml:"require_match,omitempty"`
	Expect       *int  `json:"expect,omitempty" yaml:"expect,omitempty"`
	FailOnChange *bool `json:"fail_on_change,omitempty" yaml:"fail_on_change,omitempty"`
}

// 🛠️ OperationDoc is one operation entry in a plan document, discriminated
// by Type. Replace carries With; the insert kinds carry Text.
type OperationDoc struct {
	Type   string  `json:"type" yaml:"type"`
	Find   string  `json:"find" yaml:"find"`
	With   *string `json:"with,omitempty" yaml:"with,omitempty"`
	Text   *string `json:"text,omitempty" yaml:"text,omitempty"`
	Limit  *int    `json:"limit,omitempty" yaml:"limit,omitempty"`
	Expand *bool   `json:"expand,omitempty" yaml:"expand,omitempty"`
}

// RangeDoc is the document form of a line range.
type RangeDoc struct {
	Start int  `json:"start" yaml:"start"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`
}
