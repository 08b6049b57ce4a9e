package packagestore

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// buildZip returns zip bytes containing the given name->content files.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStore_UploadExtractsAndMarksScriptExecutable(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	data := buildZip(t, map[string]string{
		scriptName:      "#!/bin/sh\necho hi\n",
		"resources.txt": "some data",
	})

	require.NoError(t, s.Upload("pkg1", data))

	scriptPath := filepath.Join(s.dirFor("pkg1"), scriptName)
	info, err := os.Stat(scriptPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	content, err := os.ReadFile(filepath.Join(s.dirFor("pkg1"), "resources.txt"))
	require.NoError(t, err)
	require.Equal(t, "some data", string(content))
}

func TestStore_UploadRejectsZipSlip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	data := buildZip(t, map[string]string{
		"../../evil.sh": "#!/bin/sh\necho pwned\n",
	})

	err := s.Upload("pkg1", data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal path")
}

func TestStore_UploadReplacesExistingPackage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.Upload("pkg1", buildZip(t, map[string]string{
		scriptName: "#!/bin/sh\necho v1\n",
		"old.txt":  "gone after replace",
	})))
	require.NoError(t, s.Upload("pkg1", buildZip(t, map[string]string{
		scriptName: "#!/bin/sh\necho v2\n",
	})))

	_, err := os.Stat(filepath.Join(s.dirFor("pkg1"), "old.txt"))
	require.True(t, os.IsNotExist(err))

	content, err := os.ReadFile(filepath.Join(s.dirFor("pkg1"), scriptName))
	require.NoError(t, err)
	require.Contains(t, string(content), "v2")
}

func TestStore_InfoAndListRoundTripMeta(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.Upload("pkg1", buildZip(t, map[string]string{scriptName: "#!/bin/sh\n"})))
	require.NoError(t, s.WritePackageMeta("pkg1", types.PackageMeta{Name: "demo"}))

	info, err := s.Info("pkg1")
	require.NoError(t, err)
	require.Equal(t, "pkg1", info.ID)
	require.Equal(t, "demo", info.PackageMeta.Name)
	require.False(t, info.PackageMeta.Built.IsZero())

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "pkg1", list[0].ID)
}

func TestStore_InfoMissingPackageErrors(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.Info("nope")
	require.Error(t, err)
}

func TestStore_DeleteRemovesPackageDirectory(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Upload("pkg1", buildZip(t, map[string]string{scriptName: "#!/bin/sh\n"})))

	require.NoError(t, s.Delete("pkg1"))
	_, err := os.Stat(s.dirFor("pkg1"))
	require.True(t, os.IsNotExist(err))

	require.Error(t, s.Delete("pkg1"))
}

func TestStore_ActivateCopiesIntoCanonicalPathAtomically(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Upload("pkg1", buildZip(t, map[string]string{
		scriptName:      "#!/bin/sh\necho hi\n",
		"data/cfg.json": "{}",
	})))

	root := t.TempDir()
	canonical := filepath.Join(root, "current-project")
	require.NoError(t, os.WriteFile(filepath.Join(root, "placeholder"), nil, 0o644))

	require.NoError(t, s.Activate("pkg1", canonical))

	content, err := os.ReadFile(ScriptPath(canonical))
	require.NoError(t, err)
	require.Contains(t, string(content), "echo hi")

	_, err = os.Stat(filepath.Join(canonical, "data", "cfg.json"))
	require.NoError(t, err)
}

func TestStore_ActivateMissingPackageErrors(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	err := s.Activate("nope", filepath.Join(t.TempDir(), "current-project"))
	require.Error(t, err)
}
