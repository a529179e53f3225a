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

// Package input decides the single input mode of a run and produces the
// ordered input-item sequence. It never discovers files on its own:
// traversal is the caller's responsibility.
package input

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Mode is the resolved input mode, named with the tokens the event stream
// uses.
type Mode string

const (
	ModeArgs          Mode = "args"
	ModeStdinPaths    Mode = "stdin-paths"
	ModeStdinPathsNul Mode = "stdin-paths-nul"
	ModeStdinText     Mode = "stdin-text"
	ModeRgJSON        Mode = "rg-json"
	ModeManifest      Mode = "manifest"
)

// Kind discriminates input items.
type Kind int

const (
	// KindPath is a file path to read, transform and rewrite.
	KindPath Kind = iota
	// KindStdinText is a block of stdin content; the result is virtual.
	KindStdinText
	// KindSpans is a path plus authoritative match spans produced by an
	// external match producer; no scanning happens for these.
	KindSpans
)

// Span pinpoints one already-located occurrence inside a file.
type Span struct {
	Start  uint64 // byte offset from file start
	Length uint64
	Line   uint64 // 1-based line number, informational
}

// Item is one logical unit of work. Path keeps the original platform bytes
// so filesystem syscalls see exactly what the producer emitted. An item
// eliminated by the glob filters stays in the sequence with SkipReason set
// so the reporter sees it at its original position.
type Item struct {
	Kind       Kind
	Path       string
	Text       []byte
	Spans      []Span
	SkipReason string
}

// StdinIsTerminal reports whether standard input is attached to a
// terminal, which disables the piped-paths fallback mode.
func StdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
