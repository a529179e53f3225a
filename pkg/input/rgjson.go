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

package input

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"io"
	"sort"

	"gitlab.com/tozd/go/errors"
)

// The rg --json stream is newline-delimited JSON. Two record categories
// advance the edit: "begin" carries the path, "match" carries byte offsets
// for each submatch. "context", "end" and "summary" records are ignored.

type rgMessage struct {
	Type string  `json:"type"`
	Data *rgData `json:"data"`
}

type rgData struct {
	Path           *rgTextOrBytes `json:"path"`
	Lines          *rgTextOrBytes `json:"lines"`
	LineNumber     *uint64        `json:"line_number"`
	AbsoluteOffset *uint64        `json:"absolute_offset"`
	Submatches     []rgSubmatch   `json:"submatches"`
}

type rgSubmatch struct {
	Match *rgTextOrBytes `json:"match"`
	Start uint64         `json:"start"`
	End   uint64         `json:"end"`
}

// rgTextOrBytes is ripgrep's encoding for values that may not be UTF-8:
// either {"text": ...} or {"bytes": base64}. Byte values decode losslessly
// into a raw byte string so paths keep their platform spelling.
type rgTextOrBytes struct {
	Text  *string `json:"text"`
	Bytes *string `json:"bytes"`
}

func (t *rgTextOrBytes) decode() (string, error) {
	switch {
	case t == nil:
		return "", errors.Errorf("missing value")
	case t.Text != nil:
		return *t.Text, nil
	case t.Bytes != nil:
		raw, err := base64.StdEncoding.DecodeString(*t.Bytes)
		if err != nil {
			return "", errors.Errorf("base64 decode failed: %w", err)
		}
		return string(raw), nil
	default:
		return "", errors.Errorf("neither text nor bytes present")
	}
}

// DecodeRgJSON consumes an rg --json stream and groups match spans by
// path, preserving first-seen path order. A line that is not valid JSON
// fails the whole run before any write.
func DecodeRgJSON(r io.Reader) ([]Item, error) {
	var items []Item
	index := make(map[string]int)

	register := func(path string) int {
		if idx, ok := index[path]; ok {
			return idx
		}
		index[path] = len(items)
		items = append(items, Item{Kind: KindSpans, Path: path})
		return len(items) - 1
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg rgMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, errors.Errorf("malformed rg json on line %d: %w", lineNo, err)
		}

		switch msg.Type {
		case "begin":
			if msg.Data == nil || msg.Data.Path == nil {
				continue
			}
			path, err := msg.Data.Path.decode()
			if err != nil {
				return nil, errors.Errorf("rg json line %d: decoding path: %w", lineNo, err)
			}
			register(path)

		case "match":
			if msg.Data == nil || msg.Data.Path == nil || msg.Data.AbsoluteOffset == nil {
				return nil, errors.Errorf("rg json line %d: match record missing path or offset", lineNo)
			}
			path, err := msg.Data.Path.decode()
			if err != nil {
				return nil, errors.Errorf("rg json line %d: decoding path: %w", lineNo, err)
			}
			idx := register(path)
			var lineNumber uint64
			if msg.Data.LineNumber != nil {
				lineNumber = *msg.Data.LineNumber
			}
			for _, sub := range msg.Data.Submatches {
				if sub.End < sub.Start {
					return nil, errors.Errorf("rg json line %d: inverted submatch range", lineNo)
				}
				items[idx].Spans = append(items[idx].Spans, Span{
					Start:  *msg.Data.AbsoluteOffset + sub.Start,
					Length: sub.End - sub.Start,
					Line:   lineNumber,
				})
			}

		case "context", "end", "summary":
			// no edit to advance

		default:
			// Deliberate: a record category outside the known producer
			// contract is an input error that fails the run before any
			// write. Do not downgrade this to a silent skip.
			return nil, errors.Errorf("rg json line %d: unknown record type %q", lineNo, msg.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Errorf("reading rg json: %w", err)
	}

	// Drop paths that never produced a span; begin records alone carry no
	// edit. Keep span order deterministic by byte offset.
	var out []Item
	for _, it := range items {
		if len(it.Spans) == 0 {
			continue
		}
		sort.Slice(it.Spans, func(i, j int) bool { return it.Spans[i].Start < it.Spans[j].Start })
		out = append(out, it)
	}
	return out, nil
}
