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

// Package parser loads plan documents. JSON is the contract format; YAML
// and HCL parse into the same document model.
package parser

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/walteh/stedi/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Parser is the interface for plan document parsers
type Parser interface {
	// 📝 Parse parses the document from bytes
	Parse(ctx context.Context, data []byte) (*plan.Document, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// Load reads and parses the plan document at path, choosing the parser by
// file extension. Unknown extensions fall back to JSON.
func Load(ctx context.Context, path string) (*plan.Document, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading plan document")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading plan document: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		p = &JSONParser{}
	}
	doc, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}
