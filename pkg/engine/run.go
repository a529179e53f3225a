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

package engine

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/stedi/pkg/diff"
	"github.com/walteh/stedi/pkg/input"
	"github.com/walteh/stedi/pkg/plan"
	"github.com/walteh/stedi/pkg/policy"
	"github.com/walteh/stedi/pkg/report"
	"github.com/walteh/stedi/pkg/txn"
	"gitlab.com/tozd/go/errors"
)

// Options tune run behavior that is not part of the plan itself.
type Options struct {
	// WantDiff attaches a unified diff to modified success outcomes.
	WantDiff bool
}

// Execute runs the whole pipeline for a resolved input sequence: per-item
// transform and stage, the policy gate, commit or abort, and report
// finalization. Items are processed sequentially in resolver order; the
// report's file list preserves that order.
//
// Invocation-level failures return an error; per-item failures land in the
// report.
func Execute(ctx context.Context, p *plan.Plan, res *input.Resolution, opts Options) (*report.Report, error) {
	logger := zerolog.Ctx(ctx)

	eng, err := New(p)
	if err != nil {
		return nil, err
	}

	enforcer := policy.New(p)
	r := report.New(p.DryRun, p.ValidateOnly)
	started := time.Now()

	emptyViolation, err := enforcer.CheckPre(len(res.Items))
	if err != nil {
		return nil, err
	}
	if emptyViolation {
		enforcer.EnforcePost(r)
		r.Duration = time.Since(started)
		return r, nil
	}

	var manager *txn.Manager
	if p.Transaction == plan.TransactionAll {
		manager = txn.NewManager()
		// staged temp files are released on every exit path
		defer manager.Abort(ctx)
	}

	wopts := txn.WriteOptions{
		NoFollowSymlinks: p.Symlinks != plan.SymlinksFollow,
		Permissions:      p.Permissions,
	}

	for i := range res.Items {
		it := &res.Items[i]
		if it.SkipReason != "" {
			r.Add(report.Skipped(it.Path, it.SkipReason))
			continue
		}
		fr, stageFailed := eng.processItem(ctx, it, manager, wopts, opts)
		if stageFailed {
			r.TransactionFailed = true
		}
		r.Add(fr)
	}

	enforcer.EnforcePost(r)

	if p.Transaction == plan.TransactionAll {
		if enforcer.ShouldCommit(r) {
			if err := manager.Commit(ctx); err != nil {
				logger.Debug().Err(err).Msg("commit failed")
				r.TransactionFailed = true
				r.CommitError = err.Error()
			} else {
				r.Committed = !p.WritesSuppressed()
			}
		}
	} else {
		r.Committed = enforcer.ShouldCommit(r)
	}

	r.Duration = time.Since(started)
	return r, nil
}

// processItem runs the per-item pipeline: acquire and classify content,
// transform, stage or write. The second return marks an all-mode staging
// failure, which poisons the whole transaction.
func (e *Engine) processItem(ctx context.Context, it *input.Item, manager *txn.Manager, wopts txn.WriteOptions, opts Options) (report.FileResult, bool) {
	if it.Kind == input.KindStdinText {
		return e.processText(it, opts), false
	}
	path := it.Path

	// classify the symlink without following it
	info, err := os.Lstat(path)
	if err != nil {
		return report.FailedOS(path, err), false
	}
	if info.Mode()&os.ModeSymlink != 0 {
		switch e.plan.Symlinks {
		case plan.SymlinksSkip:
			return report.Skipped(path, report.SkipSymlink), false
		case plan.SymlinksError:
			return report.Failed(path, report.CodeSymlink, "symlink encountered with symlink policy \"error\""), false
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return report.FailedOS(path, err), false
	}

	if sniffBinary(content) {
		if e.plan.Binary == plan.BinaryError {
			return report.Failed(path, report.CodeBinary, "binary file detected"), false
		}
		return report.Skipped(path, report.SkipBinary), false
	}

	var transformed []byte
	var count uint64
	if it.Kind == input.KindSpans {
		transformed, count, err = e.TransformSpans(content, it.Spans)
	} else {
		transformed, count, err = e.Transform(content)
	}
	if err != nil {
		var stale *StaleSpanError
		if errors.As(err, &stale) {
			return report.Failed(path, report.CodeStaleSpan, err.Error()), false
		}
		return report.Failed(path, report.CodeApply, err.Error()), false
	}

	fr := report.FileResult{
		Path:         path,
		Modified:     !bytes.Equal(content, transformed),
		Replacements: count,
	}
	e.attachDiff(&fr, content, transformed, opts)

	if fr.Modified && !e.plan.WritesSuppressed() {
		if manager != nil {
			if err := manager.Stage(ctx, path, transformed, wopts); err != nil {
				return report.Failed(path, report.CodeStage, err.Error()), true
			}
		} else {
			if err := txn.Write(ctx, path, transformed, wopts); err != nil {
				return report.Failed(path, report.CodeStage, err.Error()), false
			}
		}
	}
	return fr, false
}

// processText transforms the stdin-text item. The result is virtual; the
// transformed content rides in the outcome instead of hitting disk.
func (e *Engine) processText(it *input.Item, opts Options) report.FileResult {
	transformed, count, err := e.Transform(it.Text)
	if err != nil {
		return report.Failed("<stdin>", report.CodeApply, err.Error())
	}
	fr := report.FileResult{
		Path:         "<stdin>",
		IsVirtual:    true,
		Modified:     !bytes.Equal(it.Text, transformed),
		Replacements: count,
	}
	e.attachDiff(&fr, it.Text, transformed, opts)
	if !e.plan.DryRun {
		generated := string(transformed)
		fr.GeneratedContent = &generated
	}
	return fr
}

func (e *Engine) attachDiff(fr *report.FileResult, before, after []byte, opts Options) {
	if !opts.WantDiff || !fr.Modified {
		return
	}
	text, isBinary, err := diff.Unified(fr.Path, before, after)
	if err != nil {
		return
	}
	if isBinary {
		fr.DiffIsBinary = true
		return
	}
	if text != "" {
		fr.Diff = &text
	}
}

// sniffBinary checks the first kilobyte for a NUL byte. A more nuanced
// detector may override this classification upstream.
func sniffBinary(content []byte) bool {
	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.IndexByte(head, 0) >= 0
}
