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
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

// Format selects the user-visible rendering of a run.
type Format string

const (
	FormatHuman   Format = "human"
	FormatSummary Format = "summary"
	FormatJSON    Format = "json"
	FormatAgent   Format = "agent"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatHuman, FormatSummary, FormatJSON, FormatAgent:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// 🖨️ Printer renders a finalized report for humans. Generated content (the
// stdin-text payload) always goes to out; everything else moves to errOut
// whenever content occupies out.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool
}

// NewPrinter creates a printer over the given sinks.
func NewPrinter(out, errOut io.Writer, quiet bool) *Printer {
	return &Printer{out: out, errOut: errOut, quiet: quiet}
}

// Print renders the report in the given human-oriented format. FormatJSON
// is handled by the Emitter, not here.
func (p *Printer) Print(r *Report, format Format) {
	if format == FormatAgent {
		p.printAgent(r)
		return
	}
	p.printConsole(r, format == FormatHuman)
}

func (p *Printer) printConsole(r *Report, withDiffs bool) {
	if r.PolicyViolation != "" {
		fmt.Fprintf(p.errOut, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("policy:"), r.PolicyViolation)
	}
	if r.CommitError != "" {
		fmt.Fprintf(p.errOut, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("transaction:"), r.CommitError)
	}

	hasContent := false
	for i := range r.Files {
		if r.Files[i].GeneratedContent != nil {
			hasContent = true
			break
		}
	}

	meta := p.out
	if hasContent || p.quiet {
		meta = p.errOut
	}

	for i := range r.Files {
		f := &r.Files[i]
		if f.GeneratedContent != nil {
			fmt.Fprint(p.out, *f.GeneratedContent)
		}
		switch {
		case f.ErrCode != "":
			fmt.Fprintf(p.errOut, "  %s %s: %s (%s)\n",
				color.New(color.FgRed).Sprint("✗"), f.Path, f.ErrMessage, f.ErrCode)
		case p.quiet:
			// errors only
		case f.SkipReason != "":
			fmt.Fprintf(meta, "  %s %s: skipped (%s)\n",
				color.New(color.FgYellow).Sprint("-"), f.Path, f.SkipReason)
		case f.Modified:
			fmt.Fprintf(meta, "  %s %s: modified (%d replacements)\n",
				color.New(color.FgGreen).Sprint("⟳"), f.Path, f.Replacements)
			if withDiffs && f.Diff != nil {
				fmt.Fprint(meta, *f.Diff)
			}
		default:
			fmt.Fprintf(meta, "  %s %s: no changes\n",
				color.New(color.Faint).Sprint("•"), f.Path)
		}
	}

	if p.quiet {
		return
	}
	if r.ValidateOnly {
		fmt.Fprintln(meta, "VALIDATION RUN - no files were written.")
	} else if r.DryRun {
		fmt.Fprintln(meta, "DRY RUN - no files were written.")
	}
	fmt.Fprintf(meta, "Processed %d files, modified %d, %d replacements.\n",
		r.TotalProcessed, r.TotalModified, r.TotalReplacements)
}

// printAgent renders a path-grouped projection of the success events for
// machine agents. Convenience output, not part of the event contract.
func (p *Printer) printAgent(r *Report) {
	for i := range r.Files {
		f := &r.Files[i]
		fmt.Fprintf(p.out, "<file path=%q>\n", sanitize(f.Path))
		switch {
		case f.ErrCode != "":
			fmt.Fprintf(p.out, "ERROR %s: %s\n", f.ErrCode, f.ErrMessage)
		case f.SkipReason != "":
			fmt.Fprintf(p.out, "SKIPPED: %s\n", f.SkipReason)
		case f.Diff != nil:
			fmt.Fprint(p.out, *f.Diff)
		case f.Modified:
			fmt.Fprintf(p.out, "(modified, %d replacements)\n", f.Replacements)
		default:
			fmt.Fprintln(p.out, "(no changes)")
		}
		fmt.Fprintln(p.out, "</file>")
	}
}

// PrintValidation gives validate-only runs friendlier feedback than the
// per-file console lines.
func (p *Printer) PrintValidation(r *Report) {
	if r.PolicyViolation != "" {
		pterm.Error.WithWriter(p.errOut).Println(r.PolicyViolation)
		return
	}
	if r.HasErrors {
		pterm.Warning.WithWriter(p.errOut).Printfln("plan is valid, but %d inputs reported errors", countErrors(r))
		return
	}
	pterm.Success.WithWriter(p.errOut).Printfln("plan is valid: %d files, %d would be modified", r.TotalFiles, r.TotalModified)
}

func countErrors(r *Report) int {
	n := 0
	for i := range r.Files {
		if r.Files[i].ErrCode != "" {
			n++
		}
	}
	return n
}
