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

// Package txn stages transformed content to temporary sibling files and
// commits by atomic rename. Targets are never opened for writing; the only
// writes land on unique temporary names in the target's directory, so an
// interrupt can never leave a target half-written.
package txn

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/stedi/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

// WriteOptions control how a staged file is prepared.
type WriteOptions struct {
	// NoFollowSymlinks renames over the link itself instead of its target.
	NoFollowSymlinks bool
	// Permissions selects the staged file's mode bits. Mode bits only:
	// ownership and extended attributes are not copied, so the renamed
	// file is owned by the user running the process.
	Permissions plan.Permissions
}

// Staged is one staged write: a temporary sibling of its target, owned by
// the transaction layer until committed or discarded.
type Staged struct {
	tmpPath   string
	target    string
	committed bool
}

// Target returns the path the staged content will replace.
func (s *Staged) Target() string { return s.target }

// Commit renames the staged file over its target. The rename is atomic
// because the temp file lives on the same filesystem.
func (s *Staged) Commit() error {
	if err := os.Rename(s.tmpPath, s.target); err != nil {
		return errors.Errorf("renaming into place: %w", err)
	}
	s.committed = true
	return nil
}

// Discard unlinks the temporary file. Safe to call after Commit and safe
// to call twice; defer it on every path that stages.
func (s *Staged) Discard() {
	if s.committed {
		return
	}
	_ = os.Remove(s.tmpPath)
}

// Stage writes data to a fresh temporary file next to target and applies
// the permission policy. The target itself is untouched.
func Stage(ctx context.Context, target string, data []byte, opts WriteOptions) (*Staged, error) {
	resolved, err := resolveSymlink(target, opts)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(resolved)
	tmp, err := os.CreateTemp(dir, ".stedi-*.tmp")
	if err != nil {
		return nil, errors.Errorf("creating temp file: %w", err)
	}
	staged := &Staged{tmpPath: tmp.Name(), target: resolved}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		staged.Discard()
		return nil, errors.Errorf("writing temp file: %w", err)
	}

	mode, err := targetMode(resolved, opts)
	if err == nil {
		if chmodErr := tmp.Chmod(mode); chmodErr != nil {
			zerolog.Ctx(ctx).Debug().Err(chmodErr).Str("target", resolved).Msg("chmod on staged file failed")
		}
	}

	if err := tmp.Close(); err != nil {
		staged.Discard()
		return nil, errors.Errorf("closing temp file: %w", err)
	}
	return staged, nil
}

// Write stages and immediately commits; the file-transaction path.
func Write(ctx context.Context, target string, data []byte, opts WriteOptions) error {
	staged, err := Stage(ctx, target, data, opts)
	if err != nil {
		return err
	}
	defer staged.Discard()
	return staged.Commit()
}

func targetMode(target string, opts WriteOptions) (os.FileMode, error) {
	if !opts.Permissions.Preserve {
		return opts.Permissions.Mode, nil
	}
	info, err := os.Stat(target)
	if err != nil {
		return 0, err
	}
	return info.Mode().Perm(), nil
}

func resolveSymlink(target string, opts WriteOptions) (string, error) {
	info, err := os.Lstat(target)
	if err != nil {
		return "", errors.Errorf("inspecting target: %w", err)
	}
	if info.Mode()&os.ModeSymlink == 0 || opts.NoFollowSymlinks {
		return target, nil
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", errors.Errorf("resolving symlink: %w", err)
	}
	return resolved, nil
}

// 🔒 Manager coordinates the all-mode transaction: every item stages, then
// the whole set commits after the policy gate, or everything is destroyed.
type Manager struct {
	staged []*Staged
}

// NewManager creates an empty transaction.
func NewManager() *Manager {
	return &Manager{}
}

// Stage stages one target and retains the handle for commit or abort.
func (m *Manager) Stage(ctx context.Context, target string, data []byte, opts WriteOptions) error {
	s, err := Stage(ctx, target, data, opts)
	if err != nil {
		return err
	}
	m.staged = append(m.staged, s)
	return nil
}

// Len reports the number of staged files.
func (m *Manager) Len() int { return len(m.staged) }

// Commit renames every staged file into place, in staging order. The
// commit phase is not atomic across files; the contract is that no target
// is modified unless every stage succeeded. On a rename error mid-commit
// the remaining renames are still attempted and a partial-commit error is
// returned.
func (m *Manager) Commit(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	var failed []string
	for _, s := range m.staged {
		if err := s.Commit(); err != nil {
			logger.Debug().Err(err).Str("target", s.target).Msg("commit rename failed")
			failed = append(failed, s.target+": "+err.Error())
			s.Discard()
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("partial commit, %d of %d targets failed: %s",
			len(failed), len(m.staged), strings.Join(failed, "; "))
	}
	return nil
}

// Abort destroys every staged file that has not been committed. Idempotent
// and safe on every exit path.
func (m *Manager) Abort(ctx context.Context) {
	for _, s := range m.staged {
		s.Discard()
	}
}
