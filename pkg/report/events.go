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

package report

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/walteh/stedi/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

// SchemaVersion identifies the event stream shape.
const SchemaVersion = "1"

// RunMeta carries invocation facts that belong in run_start but not in the
// plan itself.
type RunMeta struct {
	ToolVersion string
	Mode        string // "cli" or "apply"
	InputMode   string // "args", "stdin-paths", "stdin-paths-nul", "stdin-text", "rg-json", "manifest"
}

// 📡 RunStart is the first event of every stream.
type RunStart struct {
	SchemaVersion   string   `json:"schema_version"`
	ToolVersion     string   `json:"tool_version"`
	Mode            string   `json:"mode"`
	InputMode       string   `json:"input_mode"`
	TransactionMode string   `json:"transaction_mode"`
	DryRun          bool     `json:"dry_run"`
	ValidateOnly    bool     `json:"validate_only"`
	NoWrite         bool     `json:"no_write"`
	Policies        Policies `json:"policies"`
}

// Policies mirrors the plan's policy block. Expect is null when no exact
// count is configured.
type Policies struct {
	RequireMatch bool `json:"require_match"`
	Expect       *int `json:"expect"`
	FailOnChange bool `json:"fail_on_change"`
}

// FileSuccess is a per-item success event.
type FileSuccess struct {
	Type             string  `json:"type"`
	Path             string  `json:"path"`
	Modified         bool    `json:"modified"`
	Replacements     uint64  `json:"replacements"`
	Diff             *string `json:"diff,omitempty"`
	DiffIsBinary     bool    `json:"diff_is_binary"`
	GeneratedContent *string `json:"generated_content,omitempty"`
	IsVirtual        bool    `json:"is_virtual"`
}

// FileSkipped is a per-item skip event. Reason is an open set.
type FileSkipped struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileError is a per-item error event. Code is an open set.
type FileError struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// 🏁 RunEnd is the last event of every stream.
type RunEnd struct {
	TotalFiles        int     `json:"total_files"`
	TotalProcessed    int     `json:"total_processed"`
	TotalModified     int     `json:"total_modified"`
	TotalReplacements uint64  `json:"total_replacements"`
	HasErrors         bool    `json:"has_errors"`
	PolicyViolation   *string `json:"policy_violation"`
	Committed         bool    `json:"committed"`
	DurationMS        int64   `json:"duration_ms"`
	ExitCode          int     `json:"exit_code"`
}

// Emitter writes the NDJSON event stream: one JSON object per line whose
// single top-level key is the event kind.
type Emitter struct {
	enc *json.Encoder
}

// NewEmitter creates an emitter over w.
func NewEmitter(w io.Writer) *Emitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Emitter{enc: enc}
}

func (e *Emitter) emit(event any) error {
	if err := e.enc.Encode(event); err != nil {
		return errors.Errorf("emitting event: %w", err)
	}
	return nil
}

// EmitRun writes the whole stream for a finalized report: run_start, one
// file event per item in input order, run_end.
func (e *Emitter) EmitRun(p *plan.Plan, meta RunMeta, r *Report) error {
	start := RunStart{
		SchemaVersion:   SchemaVersion,
		ToolVersion:     meta.ToolVersion,
		Mode:            meta.Mode,
		InputMode:       meta.InputMode,
		TransactionMode: string(p.Transaction),
		DryRun:          p.DryRun,
		ValidateOnly:    p.ValidateOnly,
		NoWrite:         p.NoWrite,
		Policies: Policies{
			RequireMatch: p.Policies.RequireMatch,
			FailOnChange: p.Policies.FailOnChange,
		},
	}
	if p.Policies.Expect >= 0 {
		expect := p.Policies.Expect
		start.Policies.Expect = &expect
	}
	if err := e.emit(struct {
		RunStart RunStart `json:"run_start"`
	}{start}); err != nil {
		return err
	}

	for i := range r.Files {
		if err := e.emit(struct {
			File any `json:"file"`
		}{fileEvent(&r.Files[i])}); err != nil {
			return err
		}
	}

	end := RunEnd{
		TotalFiles:        r.TotalFiles,
		TotalProcessed:    r.TotalProcessed,
		TotalModified:     r.TotalModified,
		TotalReplacements: r.TotalReplacements,
		HasErrors:         r.HasErrors,
		Committed:         r.Committed,
		DurationMS:        r.Duration.Milliseconds(),
		ExitCode:          r.ExitCode(),
	}
	if r.PolicyViolation != "" {
		v := sanitize(r.PolicyViolation)
		end.PolicyViolation = &v
	}
	return e.emit(struct {
		RunEnd RunEnd `json:"run_end"`
	}{end})
}

func fileEvent(fr *FileResult) any {
	switch {
	case fr.ErrCode != "":
		return FileError{
			Type:    "error",
			Path:    sanitize(fr.Path),
			Code:    fr.ErrCode,
			Message: sanitize(fr.ErrMessage),
		}
	case fr.SkipReason != "":
		return FileSkipped{
			Type:   "skipped",
			Path:   sanitize(fr.Path),
			Reason: fr.SkipReason,
		}
	default:
		ev := FileSuccess{
			Type:         "success",
			Path:         sanitize(fr.Path),
			Modified:     fr.Modified,
			Replacements: fr.Replacements,
			DiffIsBinary: fr.DiffIsBinary,
			IsVirtual:    fr.IsVirtual,
		}
		if fr.Diff != nil {
			d := sanitize(*fr.Diff)
			ev.Diff = &d
		}
		if fr.GeneratedContent != nil {
			g := sanitize(*fr.GeneratedContent)
			ev.GeneratedContent = &g
		}
		return ev
	}
}

// sanitize re-encodes a possibly non-UTF-8 value for event emission. The
// internal value keeps its original bytes for filesystem syscalls; only
// the emitted copy is rewritten.
func sanitize(s string) string {
	return strings.ToValidUTF8(s, "�")
}
