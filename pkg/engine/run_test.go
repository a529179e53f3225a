package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/stedi/pkg/input"
	"github.com/walteh/stedi/pkg/plan"
	"github.com/walteh/stedi/pkg/report"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func pathResolution(paths ...string) *input.Resolution {
	res := &input.Resolution{Mode: input.ModeArgs}
	for _, p := range paths {
		res.Items = append(res.Items, input.Item{Kind: input.KindPath, Path: p})
	}
	return res
}

func TestExecute_TransactionAll_CommitsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\nfoo\n")
	b := writeFile(t, dir, "b.txt", "baz\n")

	p := literalPlan(replaceOp("foo", "bar"))
	r, err := Execute(context.Background(), p, pathResolution(a, b), Options{})
	require.NoError(t, err)

	require.Len(t, r.Files, 2)
	assert.Equal(t, a, r.Files[0].Path)
	assert.True(t, r.Files[0].Modified)
	assert.Equal(t, uint64(2), r.Files[0].Replacements)
	assert.Equal(t, b, r.Files[1].Path)
	assert.False(t, r.Files[1].Modified)
	assert.Equal(t, uint64(0), r.Files[1].Replacements)

	assert.Equal(t, 1, r.TotalModified)
	assert.Equal(t, uint64(2), r.TotalReplacements)
	assert.True(t, r.Committed)
	assert.Equal(t, report.ExitSuccess, r.ExitCode())

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "bar\nbar\n", string(got))
	got, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "baz\n", string(got))
}

func TestExecute_RequireMatch_ViolationSuppressesCommit(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")

	p := literalPlan(replaceOp("world", "x"))
	p.Policies.RequireMatch = true

	r, err := Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)

	require.Len(t, r.Files, 1)
	assert.True(t, r.Files[0].Success())
	assert.Equal(t, uint64(0), r.Files[0].Replacements)

	assert.Contains(t, r.PolicyViolation, "No matches found")
	assert.False(t, r.Committed)
	assert.Equal(t, report.ExitPolicy, r.ExitCode())

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExecute_TransactionAll_ErrorAbortsEverything(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "x y\n")
	b := writeFile(t, dir, "b.txt", "x z\n")
	require.NoError(t, os.Chmod(b, 0o000))
	t.Cleanup(func() { _ = os.Chmod(b, 0o644) })

	p := literalPlan(replaceOp("x", "y"))
	r, err := Execute(context.Background(), p, pathResolution(a, b), Options{})
	require.NoError(t, err)

	require.Len(t, r.Files, 2)
	assert.True(t, r.Files[0].Success())
	assert.Equal(t, report.CodeAccess, r.Files[1].ErrCode)

	assert.True(t, r.HasErrors)
	assert.False(t, r.Committed)
	assert.Equal(t, report.ExitFailure, r.ExitCode())

	// the successful item must not have been committed
	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "x y\n", string(got))

	// no stray temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExecute_TransactionFile_ErrorIsItemLocal(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "x y\n")
	b := writeFile(t, dir, "b.txt", "x z\n")
	require.NoError(t, os.Chmod(b, 0o000))
	t.Cleanup(func() { _ = os.Chmod(b, 0o644) })

	p := literalPlan(replaceOp("x", "y"))
	p.Transaction = plan.TransactionFile

	r, err := Execute(context.Background(), p, pathResolution(a, b), Options{})
	require.NoError(t, err)

	assert.True(t, r.HasErrors)
	assert.Equal(t, report.ExitFailure, r.ExitCode())

	// the successful item was written despite the failure of the other
	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "y y\n", string(got))
}

func TestExecute_StaleSpan_SuppressesWrites(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "xxxxxxxxxxfob")

	p := literalPlan(replaceOp("foo", "bar"))
	res := &input.Resolution{
		Mode: input.ModeRgJSON,
		Items: []input.Item{{
			Kind:  input.KindSpans,
			Path:  a,
			Spans: []input.Span{{Start: 10, Length: 3, Line: 1}},
		}},
	}

	r, err := Execute(context.Background(), p, res, Options{})
	require.NoError(t, err)

	require.Len(t, r.Files, 1)
	assert.Equal(t, report.CodeStaleSpan, r.Files[0].ErrCode)
	assert.False(t, r.Committed)

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxxxxxfob", string(got))
}

func TestExecute_MatchSpan_Replaces(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "xxxxxxxxxxfoo")

	p := literalPlan(replaceOp("foo", "bar"))
	res := &input.Resolution{
		Mode: input.ModeRgJSON,
		Items: []input.Item{{
			Kind:  input.KindSpans,
			Path:  a,
			Spans: []input.Span{{Start: 10, Length: 3, Line: 1}},
		}},
	}

	r, err := Execute(context.Background(), p, res, Options{})
	require.NoError(t, err)
	assert.True(t, r.Committed)

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxxxxxbar", string(got))
}

func TestExecute_SafetyFlagsAreInert(t *testing.T) {
	tests := []struct {
		name string
		mut  func(p *plan.Plan)
	}{
		{name: "dry_run", mut: func(p *plan.Plan) { p.DryRun = true }},
		{name: "no_write", mut: func(p *plan.Plan) { p.NoWrite = true }},
		{name: "validate_only", mut: func(p *plan.Plan) { p.ValidateOnly = true; p.DryRun = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			a := writeFile(t, dir, "a.txt", "foo\n")

			p := literalPlan(replaceOp("foo", "bar"))
			tt.mut(p)

			r, err := Execute(context.Background(), p, pathResolution(a), Options{})
			require.NoError(t, err)

			assert.False(t, r.Committed)
			assert.True(t, r.Files[0].Modified)

			got, err := os.ReadFile(a)
			require.NoError(t, err)
			assert.Equal(t, "foo\n", string(got))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestExecute_FailOnChange_EvenInDryRun(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\n")

	p := literalPlan(replaceOp("foo", "bar"))
	p.DryRun = true
	p.Policies.FailOnChange = true

	r, err := Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)

	assert.Contains(t, r.PolicyViolation, "Changes detected")
	assert.Equal(t, report.ExitPolicy, r.ExitCode())
}

func TestExecute_ExpectCount(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo foo\n")

	p := literalPlan(replaceOp("foo", "bar"))
	p.Policies.Expect = 3

	r, err := Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)

	assert.Contains(t, r.PolicyViolation, "Expected 3 replacements, found 2")
	assert.False(t, r.Committed)

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "foo foo\n", string(got))
}

func TestExecute_AbsentGroupIsAnItemError(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "item 42\n")
	b := writeFile(t, dir, "b.txt", "no digits\n")

	p := regexPlan(plan.Operation{Kind: plan.OpReplace, Find: `(\d+)`, With: "$2", Expand: true})
	r, err := Execute(context.Background(), p, pathResolution(a, b), Options{})
	require.NoError(t, err) // the run itself proceeds and reports

	require.Len(t, r.Files, 2)
	assert.Equal(t, report.CodeApply, r.Files[0].ErrCode)
	assert.Contains(t, r.Files[0].ErrMessage, "no group 2")
	// the pattern never matches the second item, so it succeeds untouched
	assert.True(t, r.Files[1].Success())

	assert.True(t, r.HasErrors)
	assert.False(t, r.Committed)
	assert.Equal(t, report.ExitFailure, r.ExitCode())

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "item 42\n", string(got))
}

func TestExecute_BinarySniff(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(bin, []byte("foo\x00bar"), 0o644))

	t.Run("skip_policy", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		r, err := Execute(context.Background(), p, pathResolution(bin), Options{})
		require.NoError(t, err)
		assert.Equal(t, report.SkipBinary, r.Files[0].SkipReason)
		assert.Equal(t, report.ExitSuccess, r.ExitCode())
	})

	t.Run("error_policy", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		p.Binary = plan.BinaryError
		r, err := Execute(context.Background(), p, pathResolution(bin), Options{})
		require.NoError(t, err)
		assert.Equal(t, report.CodeBinary, r.Files[0].ErrCode)
		assert.Equal(t, report.ExitFailure, r.ExitCode())
	})
}

func TestExecute_SymlinkPolicies(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "target.txt", "foo\n")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	t.Run("skip", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		p.Symlinks = plan.SymlinksSkip
		r, err := Execute(context.Background(), p, pathResolution(link), Options{})
		require.NoError(t, err)
		assert.Equal(t, report.SkipSymlink, r.Files[0].SkipReason)
	})

	t.Run("error", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		p.Symlinks = plan.SymlinksError
		r, err := Execute(context.Background(), p, pathResolution(link), Options{})
		require.NoError(t, err)
		assert.Equal(t, report.CodeSymlink, r.Files[0].ErrCode)
	})

	t.Run("follow_rewrites_the_target", func(t *testing.T) {
		p := literalPlan(replaceOp("foo", "bar"))
		r, err := Execute(context.Background(), p, pathResolution(link), Options{})
		require.NoError(t, err)
		assert.True(t, r.Committed)

		got, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "bar\n", string(got))

		// the link is still a link
		info, err := os.Lstat(link)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink)
	})
}

func TestExecute_StdinText(t *testing.T) {
	p := literalPlan(replaceOp("foo", "bar"))
	res := &input.Resolution{
		Mode:  input.ModeStdinText,
		Items: []input.Item{{Kind: input.KindStdinText, Text: []byte("foo baz")}},
	}

	r, err := Execute(context.Background(), p, res, Options{})
	require.NoError(t, err)

	require.Len(t, r.Files, 1)
	f := r.Files[0]
	assert.Equal(t, "<stdin>", f.Path)
	assert.True(t, f.IsVirtual)
	assert.True(t, f.Modified)
	require.NotNil(t, f.GeneratedContent)
	assert.Equal(t, "bar baz", *f.GeneratedContent)
}

func TestExecute_Rerun_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\n")

	p := literalPlan(replaceOp("foo", "bar"))

	r, err := Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.TotalReplacements)

	r, err = Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.TotalReplacements)
	assert.Equal(t, 0, r.TotalModified)
}

func TestExecute_DiffAttachedInDryRun(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\n")

	p := literalPlan(replaceOp("foo", "bar"))
	p.DryRun = true

	r, err := Execute(context.Background(), p, pathResolution(a), Options{WantDiff: true})
	require.NoError(t, err)

	require.NotNil(t, r.Files[0].Diff)
	assert.Contains(t, *r.Files[0].Diff, "-foo")
	assert.Contains(t, *r.Files[0].Diff, "+bar")
}

func TestExecute_GlobSkippedItemsAreReported(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\n")

	p := literalPlan(replaceOp("foo", "bar"))
	res := &input.Resolution{
		Mode: input.ModeArgs,
		Items: []input.Item{
			{Kind: input.KindPath, Path: a, SkipReason: report.SkipGlobExclude},
		},
	}

	r, err := Execute(context.Background(), p, res, Options{})
	require.NoError(t, err)
	assert.Equal(t, report.SkipGlobExclude, r.Files[0].SkipReason)
	assert.Equal(t, 0, r.TotalProcessed)
	assert.Equal(t, 1, r.TotalFiles)
}

func TestExecute_EmptyInputs_RequireMatchIsPolicyViolation(t *testing.T) {
	p := literalPlan(replaceOp("foo", "bar"))
	p.Policies.RequireMatch = true

	r, err := Execute(context.Background(), p, &input.Resolution{Mode: input.ModeArgs}, Options{})
	require.NoError(t, err)
	assert.Contains(t, r.PolicyViolation, "No matches found")
	assert.Equal(t, report.ExitPolicy, r.ExitCode())
}

func TestExecute_EmptyInputs_IsAnError(t *testing.T) {
	p := literalPlan(replaceOp("foo", "bar"))
	_, err := Execute(context.Background(), p, &input.Resolution{Mode: input.ModeArgs}, Options{})
	require.Error(t, err)
}

func TestExecute_FixedPermissions(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\n")

	p := literalPlan(replaceOp("foo", "bar"))
	p.Permissions = plan.Permissions{Mode: 0o600}

	r, err := Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)
	assert.True(t, r.Committed)

	info, err := os.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestExecute_PreservePermissions(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo\n")
	require.NoError(t, os.Chmod(a, 0o640))

	p := literalPlan(replaceOp("foo", "bar"))

	_, err := Execute(context.Background(), p, pathResolution(a), Options{})
	require.NoError(t, err)

	info, err := os.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}
