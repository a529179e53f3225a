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
	"encoding/json"

	"gitlab.com/tozd/go/errors"
)

// obj is shorthand for schema nodes.
type obj = map[string]any

// SchemaJSON renders the JSON Schema for the plan document format. The
// schema is maintained alongside Document; keep the two in sync when
// adding fields.
func SchemaJSON() (string, error) {
	boolean := obj{"type": "boolean"}
	str := obj{"type": "string"}
	nonNegInt := obj{"type": "integer", "minimum": 0}
	strArray := obj{"type": "array", "items": str}

	operation := obj{
		"type":     "object",
		"required": []string{"type", "find"},
		"properties": obj{
			"type": obj{
				"type": "string",
				"enum": []string{string(OpReplace), string(OpDelete), string(OpInsertBefore), string(OpInsertAfter)},
			},
			"find":   str,
			"with":   str,
			"text":   str,
			"limit":  nonNegInt,
			"expand": boolean,
		},
		"additionalProperties": false,
	}

	lineRange := obj{
		"type":     "object",
		"required": []string{"start"},
		"properties": obj{
			"start": obj{"type": "integer", "minimum": 1},
			"end":   obj{"type": "integer", "minimum": 1},
		},
		"additionalProperties": false,
	}

	schema := obj{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"title":    "Plan",
		"type":     "object",
		"required": []string{"files", "operations"},
		"properties": obj{
			"files":               strArray,
			"operations":          obj{"type": "array", "items": operation, "minItems": 1},
			"literal":             boolean,
			"case":                obj{"type": "string", "enum": []string{string(CaseSensitive), string(CaseInsensitive), string(CaseSmart)}},
			"word":                boolean,
			"multiline":           boolean,
			"dot_matches_newline": boolean,
			"limit":               nonNegInt,
			"range":               lineRange,
			"glob_include":        strArray,
			"glob_exclude":        strArray,
			"transaction":         obj{"type": "string", "enum": []string{string(TransactionAll), string(TransactionFile)}},
			"symlinks":            obj{"type": "string", "enum": []string{string(SymlinksFollow), string(SymlinksSkip), string(SymlinksError)}},
			"binary":              obj{"type": "string", "enum": []string{string(BinarySkip), string(BinaryError)}},
			"permissions":         obj{"type": "string", "pattern": "^(preserve|0?[0-7]{3})$"},
			"dry_run":             boolean,
			"no_write":            boolean,
			"validate_only":       boolean,
			"require_match":       boolean,
			"expect":              nonNegInt,
			"fail_on_change":      boolean,
		},
		"additionalProperties": false,
	}

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Errorf("rendering schema: %w", err)
	}
	return string(out), nil
}
