package filestore

import (
	"archive/zip"
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/tests"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	loc, err := store.Save(ctx, "assignments/1/question/hw.txt", strings.NewReader("question"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "assignments", "1", "question", "hw.txt"), loc)

	rc, err := store.Open(ctx, "assignments/1/question/hw.txt")
	require.NoError(t, err)
	data, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "question", string(data))

	_, err = store.Save(ctx, "assignments/1/submissions/a.zip", strings.NewReader("zip"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "assignments/10/submissions/b.zip", strings.NewReader("zip"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "assignments/1/"))
	_, err = os.Stat(filepath.Join(root, "assignments", "1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "assignments", "10", "submissions", "b.zip"))
	assert.NoError(t, err, "sibling prefixes are kept")

	_, err = store.Save(ctx, "../escape.txt", strings.NewReader("nope"))
	assert.Equal(t, errBadKey, err)
	assert.Equal(t, errBadKey, store.Delete(ctx, ""))
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	store, err := New(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	conf.Uploads.Backend = "ftp"
	_, err = New(context.Background(), conf)
	assert.EqualError(t, err, `unknown uploads backend "ftp"`)
}

func writeZip(t *testing.T, data []byte) string {
	p := filepath.Join(t.TempDir(), "upload.zip")
	require.NoError(t, ioutil.WriteFile(p, data, 0o644))
	return p
}

func TestZipExtractor_Extract(t *testing.T) {
	t.Run("extracts nested files", func(t *testing.T) {
		src := writeZip(t, testutil.MakeZip(t, map[string]string{
			"alice.py":                "print('alice')",
			"group/bob.py":            "print('bob')",
			"__MACOSX/group/._bob.py": "junk",
		}))
		dst := filepath.Join(t.TempDir(), "out")

		require.NoError(t, ZipExtractor{}.Extract(src, dst))

		data, err := ioutil.ReadFile(filepath.Join(dst, "alice.py"))
		require.NoError(t, err)
		assert.Equal(t, "print('alice')", string(data))
		data, err = ioutil.ReadFile(filepath.Join(dst, "group", "bob.py"))
		require.NoError(t, err)
		assert.Equal(t, "print('bob')", string(data))
		_, err = os.Stat(filepath.Join(dst, "__MACOSX"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("rejects zip slip", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: "../../evil.py", Method: zip.Deflate})
		require.NoError(t, err)
		_, _ = w.Write([]byte("evil"))
		require.NoError(t, zw.Close())

		dst := filepath.Join(t.TempDir(), "a", "out")
		err = ZipExtractor{}.Extract(writeZip(t, buf.Bytes()), dst)
		assert.Error(t, err)
		_, err = os.Stat(filepath.Join(dst, "..", "..", "evil.py"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("enforces size limit", func(t *testing.T) {
		src := writeZip(t, testutil.MakeZip(t, map[string]string{"big.py": strings.Repeat("x", 100)}))

		err := ZipExtractor{MaxSize: 99}.Extract(src, filepath.Join(t.TempDir(), "out"))
		assert.Equal(t, ErrZipTooLarge, err)

		assert.NoError(t, ZipExtractor{MaxSize: 100}.Extract(src, filepath.Join(t.TempDir(), "out")))
	})

	t.Run("rejects corrupted archive", func(t *testing.T) {
		src := writeZip(t, []byte("definitely not a zip"))
		assert.Error(t, ZipExtractor{}.Extract(src, filepath.Join(t.TempDir(), "out")))
	})
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://f002.backblazeb2.com/file/grader/assignments/1/submissions/subs.zip",
		objectURL("https://f002.backblazeb2.com/", "grader", "assignments/1/submissions/subs.zip"),
	)
	assert.Equal(t,
		"https://f002.backblazeb2.com/file/grader/a.txt",
		objectURL("https://f002.backblazeb2.com", "grader", "a.txt"),
	)
}
