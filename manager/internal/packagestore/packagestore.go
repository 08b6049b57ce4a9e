// Package packagestore owns the Manager's local execution package
// directory: uploaded/fetched zips extracted on disk, keyed by package id,
// and the atomic "activate" step that replaces the canonical project path
// the script reads from (spec.md §4.2 "Start sequence" steps 2-4; spec.md
// §6 canonical path is $ARCOR2_PROJECT_PATH).
//
// Grounded on the teacher's connection.saveState temp-file-then-rename
// idiom (agent/internal/connection/manager.go) for atomicity, generalized
// from a single JSON file to a whole directory tree.
package packagestore

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// scriptName is the entry point every execution package's zip must contain
// at its root (spec.md §4.4: "the generated script").
const scriptName = "script.py"

// metaName is the package metadata file name within each package directory.
const metaName = "package.json"

// Store manages a root directory of extracted execution packages.
type Store struct {
	rootDir string
	logger  *zap.Logger
}

// New returns a Store rooted at rootDir, creating it if necessary.
func New(rootDir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o750); err != nil {
		return nil, fmt.Errorf("packagestore: create root dir: %w", err)
	}
	return &Store{rootDir: rootDir, logger: logger.Named("packagestore")}, nil
}

func (s *Store) dirFor(id string) string { return filepath.Join(s.rootDir, id) }

// Upload extracts zipData into the store under id, replacing any existing
// package with that id (spec.md's UploadPackage RPC).
func (s *Store) Upload(id string, zipData []byte) error {
	return s.extractAtomic(zipData, s.dirFor(id), id)
}

// extractAtomic unpacks zipData into a unique scratch directory, then
// atomically renames it over dest — the same tempdir-then-rename shape the
// teacher uses for agent-state.json, scaled up to a directory tree
// (spec.md §4.2 step 3: "extract into a unique working directory and
// atomically replace the canonical path").
func (s *Store) extractAtomic(zipData []byte, dest, label string) error {
	scratch, err := os.MkdirTemp(filepath.Dir(dest), ".extract-"+label+"-")
	if err != nil {
		return fmt.Errorf("packagestore: create scratch dir: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(scratch)
		}
	}()

	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return fmt.Errorf("packagestore: open zip: %w", err)
	}
	for _, f := range zr.File {
		if err := extractOne(scratch, f); err != nil {
			return fmt.Errorf("packagestore: extract %s: %w", f.Name, err)
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("packagestore: remove previous %s: %w", label, err)
	}
	if err := os.Rename(scratch, dest); err != nil {
		return fmt.Errorf("packagestore: activate %s: %w", label, err)
	}
	ok = true

	scriptPath := filepath.Join(dest, scriptName)
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		s.logger.Warn("packagestore: failed to mark script executable", zap.String("path", scriptPath), zap.Error(err))
	}
	return nil
}

// extractOne writes a single zip entry under root, guarding against zip-slip
// path traversal (entries whose name escapes root via "..").
func extractOne(root string, f *zip.File) error {
	cleanName := filepath.Clean(f.Name)
	if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
		return fmt.Errorf("illegal path in package zip: %s", f.Name)
	}
	target := filepath.Join(root, cleanName)

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o750)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// Activate copies the already-stored package id into canonicalPath
// atomically, so the script can open $ARCOR2_PROJECT_PATH and find its
// resources there (spec.md §4.2 step 3).
func (s *Store) Activate(id, canonicalPath string) error {
	src := s.dirFor(id)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("packagestore: package %s not found: %w", id, err)
	}

	scratch, err := os.MkdirTemp(filepath.Dir(canonicalPath), ".activate-"+id+"-")
	if err != nil {
		return fmt.Errorf("packagestore: create scratch dir: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(scratch)
		}
	}()

	if err := copyTree(src, scratch); err != nil {
		return fmt.Errorf("packagestore: copy %s into scratch: %w", id, err)
	}
	if err := os.RemoveAll(canonicalPath); err != nil {
		return fmt.Errorf("packagestore: remove previous canonical path: %w", err)
	}
	if err := os.Rename(scratch, canonicalPath); err != nil {
		return fmt.Errorf("packagestore: activate canonical path: %w", err)
	}
	ok = true
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		info, err := d.Info()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

// ScriptPath returns the path to id's entry-point script within the
// canonical run directory.
func ScriptPath(canonicalPath string) string {
	return filepath.Join(canonicalPath, scriptName)
}

// Delete removes package id from the store (spec.md's DeletePackage RPC).
func (s *Store) Delete(id string) error {
	dir := s.dirFor(id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("packagestore: package %s not found: %w", id, err)
	}
	return os.RemoveAll(dir)
}

// Info reads package.json for id and returns its summary (spec.md's
// PackageInfo RPC).
func (s *Store) Info(id string) (types.PackageSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.dirFor(id), metaName))
	if err != nil {
		return types.PackageSummary{}, fmt.Errorf("packagestore: read %s meta: %w", id, err)
	}
	var meta types.PackageMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.PackageSummary{}, fmt.Errorf("packagestore: decode %s meta: %w", id, err)
	}
	return types.PackageSummary{ID: id, PackageMeta: meta}, nil
}

// List returns every package currently stored (spec.md's ListPackages RPC).
func (s *Store) List() ([]types.PackageSummary, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("packagestore: list root dir: %w", err)
	}
	out := make([]types.PackageSummary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		summary, err := s.Info(e.Name())
		if err != nil {
			s.logger.Warn("packagestore: skipping unreadable package", zap.String("id", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

// WritePackageMeta writes package.json for id — used after Upload when the
// caller already knows the package's display name (the zip itself need not
// carry metadata).
func (s *Store) WritePackageMeta(id string, meta types.PackageMeta) error {
	if meta.Built.IsZero() {
		meta.Built = time.Now()
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("packagestore: marshal %s meta: %w", id, err)
	}
	return os.WriteFile(filepath.Join(s.dirFor(id), metaName), data, 0o640)
}
