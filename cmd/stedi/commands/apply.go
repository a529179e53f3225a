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

// Package commands holds the stedi subcommands.
package commands

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/walteh/stedi/pkg/engine"
	"github.com/walteh/stedi/pkg/input"
	"github.com/walteh/stedi/pkg/plan"
	"github.com/walteh/stedi/pkg/plan/parser"
	"github.com/walteh/stedi/pkg/report"
	"gitlab.com/tozd/go/errors"
)

// Version is the tool version surfaced in run_start events.
const Version = "0.4.0"

type applyFlags struct {
	manifest string

	stdinPaths bool
	files0     bool
	stdinText  bool
	rgJSON     bool
	preferArgs bool

	regex        bool
	fixedStrings bool
	ignoreCase   bool
	smartCase    bool
	wordRegexp   bool
	multiline    bool
	dotNewline   bool

	limit     int
	lineRange string

	include []string
	exclude []string

	transaction string
	symlinks    string
	binary      string
	chmod       string

	preview      bool
	noWrite      bool
	validateOnly bool

	requireMatch bool
	expect       int
	failOnChange bool

	format string
	asJSON bool
	quiet  bool
}

// NewApplyCmd creates the apply command, the main entry point of the
// pipeline.
func NewApplyCmd() *cobra.Command {
	f := &applyFlags{}

	cmd := &cobra.Command{
		Use:           "apply [flags] FIND REPLACE [FILE...]",
		Aliases:       []string{"a"},
		Short:         "Apply transformations to files",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: `Apply runs the plan against the resolved inputs:
1. Resolve the input mode (positional files, stdin paths, stdin text, or rg --json spans)
2. Normalize flags and the optional plan document into one plan
3. Transform each input and stage the results (file mode renames each one into place at once)
4. Enforce policies, then rename the staged set into place, one file at a time`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.manifest, "manifest", "m", "", "plan document file (.json, .yaml or .hcl)")

	flags.BoolVar(&f.stdinPaths, "stdin-paths", false, "force stdin to be newline-delimited paths")
	flags.BoolVar(&f.files0, "files0", false, "read NUL-delimited paths from stdin (find -print0, fd -0)")
	flags.BoolVar(&f.stdinText, "stdin-text", false, "treat stdin as content and write the result to stdout")
	flags.BoolVar(&f.rgJSON, "rg-json", false, "consume rg --json output and edit the matched spans")
	flags.BoolVar(&f.preferArgs, "prefer-args", false, "prefer positional files over piped stdin")
	cmd.MarkFlagsMutuallyExclusive("stdin-paths", "files0", "stdin-text", "rg-json")

	flags.BoolVar(&f.regex, "regex", false, "treat the pattern as a regex (default)")
	flags.BoolVarP(&f.fixedStrings, "fixed-strings", "F", false, "treat the pattern as a literal string")
	cmd.MarkFlagsMutuallyExclusive("regex", "fixed-strings")

	flags.BoolVarP(&f.ignoreCase, "ignore-case", "i", false, "case-insensitive matching")
	flags.BoolVarP(&f.smartCase, "smart-case", "S", false, "case-insensitive unless the pattern has uppercase")
	cmd.MarkFlagsMutuallyExclusive("ignore-case", "smart-case")
	flags.BoolVarP(&f.wordRegexp, "word-regexp", "w", false, "match only at word boundaries")
	flags.BoolVar(&f.multiline, "multiline", false, "^ and $ match line boundaries")
	flags.BoolVar(&f.dotNewline, "dot-matches-newline", false, "make '.' match newlines")

	flags.IntVarP(&f.limit, "max-replacements", "n", 0, "maximum replacements per file (0 = unlimited)")
	flags.StringVar(&f.lineRange, "range", "", "restrict to a 1-based line range, START[:END]")

	flags.StringArrayVar(&f.include, "include", nil, "glob of paths to retain (repeatable)")
	flags.StringArrayVar(&f.exclude, "exclude", nil, "glob of paths to drop (repeatable)")

	flags.StringVar(&f.transaction, "transaction", "", "commit scope: all or file")
	flags.StringVar(&f.symlinks, "symlinks", "", "symlink policy: follow, skip or error")
	flags.StringVar(&f.binary, "binary", "", "binary policy: skip or error")
	flags.StringVar(&f.chmod, "chmod", "", "permissions for rewritten files: preserve or octal mode bits")

	flags.BoolVarP(&f.preview, "preview", "p", false, "dry-run: compute changes but don't write")
	flags.BoolVar(&f.noWrite, "no-write", false, "guarantee zero writes regardless of other flags")
	flags.BoolVar(&f.validateOnly, "validate-only", false, "validate the plan and semantic checks without writing")
	cmd.MarkFlagsMutuallyExclusive("preview", "validate-only")

	flags.BoolVar(&f.requireMatch, "require-match", false, "fail if zero matches are found across all inputs")
	flags.IntVar(&f.expect, "expect", -1, "require exactly N total replacements")
	flags.BoolVar(&f.failOnChange, "fail-on-change", false, "exit non-zero if any change would occur")

	flags.StringVar(&f.format, "format", string(report.FormatHuman), "output format: human, summary, json or agent")
	flags.BoolVar(&f.asJSON, "json", false, "shorthand for --format json")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "suppress human output except errors")

	return cmd
}

func runApply(cmd *cobra.Command, f *applyFlags, args []string) error {
	ctx := cmd.Context()

	format := report.Format(f.format)
	if f.asJSON {
		format = report.FormatJSON
	}
	format, err := report.ParseFormat(string(format))
	if err != nil {
		return err
	}

	var doc *plan.Document
	mode := "cli"
	if f.manifest != "" {
		doc, err = parser.Load(ctx, f.manifest)
		if err != nil {
			return err
		}
		mode = "apply"
	}

	ov, err := overlayFromFlags(cmd, f, args, doc != nil)
	if err != nil {
		return err
	}

	p, err := plan.Normalize(doc, ov)
	if err != nil {
		return err
	}

	fromManifest := doc != nil && len(ov.Files) == 0 && len(doc.Files) > 0
	workDir, _ := os.Getwd()
	res, err := input.Resolve(ctx, input.Request{
		StdinPaths:      f.stdinPaths,
		StdinPathsNul:   f.files0,
		StdinText:       f.stdinText,
		RgJSON:          f.rgJSON,
		PreferArgs:      f.preferArgs,
		Files:           p.Files,
		FromManifest:    fromManifest,
		Stdin:           cmd.InOrStdin(),
		StdinIsTerminal: input.StdinIsTerminal(),
		WorkDir:         workDir,
	}, p.GlobInclude, p.GlobExclude)
	if err != nil {
		return err
	}

	wantDiff := p.DryRun || p.ValidateOnly || format == report.FormatAgent
	r, err := engine.Execute(ctx, p, res, engine.Options{WantDiff: wantDiff})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	if format == report.FormatJSON {
		meta := report.RunMeta{ToolVersion: Version, Mode: mode, InputMode: string(res.Mode)}
		if err := report.NewEmitter(out).EmitRun(p, meta, r); err != nil {
			return err
		}
	} else {
		printer := report.NewPrinter(out, errOut, f.quiet)
		printer.Print(r, format)
		if p.ValidateOnly {
			printer.PrintValidation(r)
		}
	}

	if code := r.ExitCode(); code != report.ExitSuccess {
		return &report.ExitError{Code: code}
	}
	return nil
}

// overlayFromFlags builds the normalization overlay, setting only fields
// whose flags the caller actually passed.
func overlayFromFlags(cmd *cobra.Command, f *applyFlags, args []string, haveManifest bool) (*plan.Overlay, error) {
	ov := &plan.Overlay{}
	changed := cmd.Flags().Changed

	if haveManifest {
		ov.Files = args
	} else {
		if len(args) < 2 {
			return nil, errors.Errorf("FIND and REPLACE are required without --manifest")
		}
		find, replace := args[0], args[1]
		ov.Find = &find
		ov.Replace = &replace
		ov.Files = args[2:]
	}

	if changed("fixed-strings") || changed("regex") {
		lit := f.fixedStrings
		ov.Literal = &lit
	}
	if changed("ignore-case") && f.ignoreCase {
		c := plan.CaseInsensitive
		ov.Case = &c
	}
	if changed("smart-case") && f.smartCase {
		c := plan.CaseSmart
		ov.Case = &c
	}
	if changed("word-regexp") {
		ov.Word = &f.wordRegexp
	}
	if changed("multiline") {
		ov.Multiline = &f.multiline
	}
	if changed("dot-matches-newline") {
		ov.DotMatchesNewline = &f.dotNewline
	}
	if changed("max-replacements") {
		if f.limit < 0 {
			return nil, errors.Errorf("--max-replacements cannot be negative")
		}
		ov.Limit = &f.limit
	}
	if changed("range") {
		r, err := parseRange(f.lineRange)
		if err != nil {
			return nil, err
		}
		ov.Range = r
	}
	if len(f.include) > 0 {
		ov.GlobInclude = f.include
	}
	if len(f.exclude) > 0 {
		ov.GlobExclude = f.exclude
	}
	if changed("transaction") {
		t, err := plan.ParseTransaction(f.transaction)
		if err != nil {
			return nil, err
		}
		ov.Transaction = &t
	}
	if changed("symlinks") {
		s, err := plan.ParseSymlinks(f.symlinks)
		if err != nil {
			return nil, err
		}
		ov.Symlinks = &s
	}
	if changed("binary") {
		b, err := plan.ParseBinary(f.binary)
		if err != nil {
			return nil, err
		}
		ov.Binary = &b
	}
	if changed("chmod") {
		ov.Permissions = &f.chmod
	}
	if changed("preview") {
		ov.DryRun = &f.preview
	}
	if changed("no-write") {
		ov.NoWrite = &f.noWrite
	}
	if changed("validate-only") {
		ov.ValidateOnly = &f.validateOnly
	}
	if changed("require-match") {
		ov.RequireMatch = &f.requireMatch
	}
	if changed("expect") {
		if f.expect < 0 {
			return nil, errors.Errorf("--expect cannot be negative")
		}
		ov.Expect = &f.expect
	}
	if changed("fail-on-change") {
		ov.FailOnChange = &f.failOnChange
	}
	return ov, nil
}

// parseRange parses START, START:, or START:END into a line range.
func parseRange(s string) (*plan.LineRange, error) {
	startStr, endStr, hasEnd := strings.Cut(s, ":")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, errors.Errorf("invalid range %q: %w", s, err)
	}
	r := &plan.LineRange{Start: start}
	if hasEnd && endStr != "" {
		end, err := strconv.Atoi(endStr)
		if err != nil {
			return nil, errors.Errorf("invalid range %q: %w", s, err)
		}
		r.End = end
	}
	return r, nil
}
