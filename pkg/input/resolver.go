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
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/stedi/pkg/report"
	"gitlab.com/tozd/go/errors"
)

// 🎛️ Request describes the invocation facts the resolver selects a mode
// from. Exactly one explicit mode flag may be set.
type Request struct {
	StdinPaths    bool // stdin carries newline-delimited paths
	StdinPathsNul bool // stdin carries NUL-delimited paths
	StdinText     bool // stdin carries content
	RgJSON        bool // stdin carries an rg --json stream

	// PreferArgs asserts positional precedence over piped stdin.
	PreferArgs bool

	// Files is the merged positional/document file list; FromManifest
	// records that it came from a plan document.
	Files        []string
	FromManifest bool

	Stdin           io.Reader
	StdinIsTerminal bool

	// WorkDir anchors glob matching; empty means the process cwd.
	WorkDir string
}

// Resolution is the resolver's output: the chosen mode and the ordered
// item sequence, glob-eliminated items included with SkipReason set.
type Resolution struct {
	Mode  Mode
	Items []Item
}

// Resolve selects exactly one input mode, reads the raw item list, applies
// include and exclude globs, and deduplicates by canonical path with
// first-seen order preserved.
func Resolve(ctx context.Context, req Request, globInclude, globExclude []string) (*Resolution, error) {
	logger := zerolog.Ctx(ctx)

	if err := checkExclusions(req); err != nil {
		return nil, err
	}

	mode := selectMode(req)
	logger.Debug().Str("mode", string(mode)).Msg("resolved input mode")

	res := &Resolution{Mode: mode}
	var items []Item

	switch mode {
	case ModeStdinText:
		text, err := io.ReadAll(req.Stdin)
		if err != nil {
			return nil, errors.Errorf("reading stdin: %w", err)
		}
		items = []Item{{Kind: KindStdinText, Text: text}}

	case ModeRgJSON:
		spanItems, err := DecodeRgJSON(req.Stdin)
		if err != nil {
			return nil, err
		}
		items = spanItems

	case ModeStdinPaths:
		paths, err := readNewlinePaths(req.Stdin)
		if err != nil {
			return nil, err
		}
		items = pathItems(paths)

	case ModeStdinPathsNul:
		paths, err := readNulPaths(req.Stdin)
		if err != nil {
			return nil, err
		}
		items = pathItems(paths)

	default: // ModeArgs, ModeManifest
		if len(req.Files) == 0 {
			return nil, errors.Errorf("no input sources specified")
		}
		items = pathItems(req.Files)
	}

	applyGlobs(items, globInclude, globExclude, req.WorkDir)
	res.Items = dedupe(items)
	return res, nil
}

func checkExclusions(req Request) error {
	if req.StdinText && (req.StdinPathsNul || req.RgJSON) {
		return errors.Errorf("stdin-text conflicts with NUL-delimited paths and rg-json input")
	}
	n := 0
	for _, set := range []bool{req.StdinPaths, req.StdinPathsNul, req.StdinText, req.RgJSON} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errors.Errorf("conflicting input modes")
	}
	if req.RgJSON && len(req.Files) > 0 && !req.FromManifest {
		return errors.Errorf("rg-json input cannot be combined with positional files")
	}
	return nil
}

// selectMode applies the selection rules in order: explicit flag, asserted
// positional precedence, piped stdin, positional paths.
func selectMode(req Request) Mode {
	switch {
	case req.StdinPaths:
		return ModeStdinPaths
	case req.StdinPathsNul:
		return ModeStdinPathsNul
	case req.StdinText:
		return ModeStdinText
	case req.RgJSON:
		return ModeRgJSON
	}
	if len(req.Files) > 0 && req.PreferArgs {
		return fileMode(req)
	}
	if !req.StdinIsTerminal && len(req.Files) == 0 && req.Stdin != nil {
		return ModeStdinPaths
	}
	return fileMode(req)
}

func fileMode(req Request) Mode {
	if req.FromManifest {
		return ModeManifest
	}
	return ModeArgs
}

func pathItems(paths []string) []Item {
	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, Item{Kind: KindPath, Path: p})
	}
	return items
}

func readNewlinePaths(r io.Reader) ([]string, error) {
	var paths []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Errorf("reading stdin paths: %w", err)
	}
	return paths, nil
}

func readNulPaths(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var paths []string
	for {
		chunk, err := br.ReadBytes(0)
		if len(chunk) > 0 {
			p := strings.TrimSuffix(string(chunk), "\x00")
			if p != "" {
				paths = append(paths, p)
			}
		}
		if err == io.EOF {
			return paths, nil
		}
		if err != nil {
			return nil, errors.Errorf("reading stdin paths: %w", err)
		}
	}
}

// applyGlobs marks path-bearing items not matched by the include set, or
// matched by the exclude set, as skipped with reason glob_exclude. The
// sequence order is untouched.
func applyGlobs(items []Item, include, exclude []string, workDir string) {
	if len(include) == 0 && len(exclude) == 0 {
		return
	}

	for i := range items {
		it := &items[i]
		if it.Kind == KindStdinText {
			continue
		}
		rel := globPath(it.Path, workDir)
		if len(include) > 0 && !matchAny(include, rel) {
			it.SkipReason = report.SkipGlobExclude
			continue
		}
		if matchAny(exclude, rel) {
			it.SkipReason = report.SkipGlobExclude
		}
	}
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// globPath normalizes a path for glob matching: relative to the working
// directory when possible, cleaned, forward slashes.
func globPath(path, workDir string) string {
	p := path
	if workDir != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(workDir, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// dedupe drops repeat occurrences of the same canonical path, first seen
// wins. Span items for the same path are merged instead of dropped.
func dedupe(items []Item) []Item {
	seen := make(map[string]int, len(items))
	var out []Item
	for _, it := range items {
		if it.Kind == KindStdinText {
			out = append(out, it)
			continue
		}
		key := canonical(it.Path)
		if idx, ok := seen[key]; ok {
			if it.Kind == KindSpans {
				merged := append(out[idx].Spans, it.Spans...)
				sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
				out[idx].Spans = merged
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, it)
	}
	return out
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
