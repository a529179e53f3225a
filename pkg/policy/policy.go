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

// Package policy gates the commit on aggregate run outcomes.
package policy

import (
	"fmt"

	"github.com/walteh/stedi/pkg/plan"
	"github.com/walteh/stedi/pkg/report"
	"gitlab.com/tozd/go/errors"
)

// Enforcer evaluates pre- and post-execution policies for one plan.
type Enforcer struct {
	plan *plan.Plan
}

// New creates an enforcer for the plan.
func New(p *plan.Plan) *Enforcer {
	return &Enforcer{plan: p}
}

// CheckPre runs the pre-execution checks: the input list must be
// non-empty. Runs before any read. An empty list under require_match is a
// policy violation rather than an invocation error, so the run still
// emits its event stream; emptyViolation reports that case.
func (e *Enforcer) CheckPre(itemCount int) (emptyViolation bool, err error) {
	if itemCount == 0 {
		if e.plan.Policies.RequireMatch {
			return true, nil
		}
		return false, errors.Errorf("no input sources specified")
	}
	return false, nil
}

// EnforcePost is the single authoritative post-execution gate. It runs
// after all per-item processing and before commit; the first violated
// policy wins and its message is stable.
func (e *Enforcer) EnforcePost(r *report.Report) {
	pol := e.plan.Policies
	switch {
	case pol.RequireMatch && r.TotalReplacements == 0:
		r.PolicyViolation = "No matches found (--require-match)"
	case pol.Expect >= 0 && r.TotalReplacements != uint64(pol.Expect):
		r.PolicyViolation = fmt.Sprintf("Expected %d replacements, found %d (--expect)",
			pol.Expect, r.TotalReplacements)
	case pol.FailOnChange && r.TotalModified > 0:
		r.PolicyViolation = fmt.Sprintf("Changes detected in %d files (--fail-on-change)",
			r.TotalModified)
	}
}

// ShouldCommit reports whether the staged set may be renamed into place:
// never under a safety flag, never after an error or policy violation.
func (e *Enforcer) ShouldCommit(r *report.Report) bool {
	if e.plan.WritesSuppressed() {
		return false
	}
	return r.ExitCode() == report.ExitSuccess
}
