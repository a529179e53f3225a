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

package parser

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/walteh/stedi/pkg/plan"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL plan documents
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

// 📝 Parse parses the document from HCL
func (p *HCLParser) Parse(ctx context.Context, data []byte) (*plan.Document, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "plan.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	// Create evaluation context
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	// Define HCL schema
	type hclOperation struct {
		Type   string  `hcl:"type"`
		Find   string  `hcl:"find"`
		With   *string `hcl:"with,optional"`
		Text   *string `hcl:"text,optional"`
		Limit  *int    `hcl:"limit,optional"`
		Expand *bool   `hcl:"expand,optional"`
	}
	type hclRange struct {
		Start int  `hcl:"start"`
		End   *int `hcl:"end,optional"`
	}
	type hclDocument struct {
		Files      []string       `hcl:"files"`
		Operations []hclOperation `hcl:"operation,block"`

		Literal           *bool   `hcl:"literal,optional"`
		Case              *string `hcl:"case,optional"`
		Word              *bool   `hcl:"word,optional"`
		Multiline         *bool   `hcl:"multiline,optional"`
		DotMatchesNewline *bool   `hcl:"dot_matches_newline,optional"`

		Limit *int      `hcl:"limit,optional"`
		Range *hclRange `hcl:"range,block"`

		GlobInclude []string `hcl:"glob_include,optional"`
		GlobExclude []string `hcl:"glob_exclude,optional"`

		Transaction *string `hcl:"transaction,optional"`
		Symlinks    *string `hcl:"symlinks,optional"`
		Binary      *string `hcl:"binary,optional"`
		Permissions *string `hcl:"permissions,optional"`

		DryRun       *bool `hcl:"dry_run,optional"`
		NoWrite      *bool `hcl:"no_write,optional"`
		ValidateOnly *bool `hcl:"validate_only,optional"`

		RequireMatch *bool `hcl:"require_match,optional"`
		Expect       *int  `hcl:"expect,optional"`
		FailOnChange *bool `hcl:"fail_on_change,optional"`
	}

	// Decode HCL
	var hclDoc hclDocument
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hclDoc)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	// Convert to document model
	doc := &plan.Document{
		Files:             hclDoc.Files,
		Literal:           hclDoc.Literal,
		Case:              hclDoc.Case,
		Word:              hclDoc.Word,
		Multiline:         hclDoc.Multiline,
		DotMatchesNewline: hclDoc.DotMatchesNewline,
		Limit:             hclDoc.Limit,
		GlobInclude:       hclDoc.GlobInclude,
		GlobExclude:       hclDoc.GlobExclude,
		Transaction:       hclDoc.Transaction,
		Symlinks:          hclDoc.Symlinks,
		Binary:            hclDoc.Binary,
		Permissions:       hclDoc.Permissions,
		DryRun:            hclDoc.DryRun,
		NoWrite:           hclDoc.NoWrite,
		ValidateOnly:      hclDoc.ValidateOnly,
		RequireMatch:      hclDoc.RequireMatch,
		Expect:            hclDoc.Expect,
		FailOnChange:      hclDoc.FailOnChange,
	}
	for _, op := range hclDoc.Operations {
		doc.Operations = append(doc.Operations, plan.OperationDoc{
			Type:   op.Type,
			Find:   op.Find,
			With:   op.With,
			Text:   op.Text,
			Limit:  op.Limit,
			Expand: op.Expand,
		})
	}
	if hclDoc.Range != nil {
		doc.Range = &plan.RangeDoc{Start: hclDoc.Range.Start, End: hclDoc.Range.End}
	}

	return doc, nil
}
