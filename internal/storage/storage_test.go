package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/apperror"
)

func newTestDisk(t *testing.T) (*Disk, string) {
	t.Helper()
	root := t.TempDir()
	d, err := NewDisk(root, "http://cdn.test/storage/")
	require.NoError(t, err)
	return d, root
}

func TestUpload_WritesFile(t *testing.T) {
	d, root := newTestDisk(t)

	err := d.Upload(context.Background(), "public/u1/avatar.png", strings.NewReader("png-bytes"), UploadOptions{Upsert: true})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "public", "u1", "avatar.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))
}

func TestUpload_UpsertSemantics(t *testing.T) {
	d, root := newTestDisk(t)
	ctx := context.Background()

	require.NoError(t, d.Upload(ctx, "a.txt", strings.NewReader("one"), UploadOptions{}))

	err := d.Upload(ctx, "a.txt", strings.NewReader("two"), UploadOptions{})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	require.NoError(t, d.Upload(ctx, "a.txt", strings.NewReader("three"), UploadOptions{Upsert: true}))
	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "three", string(got))
}

func TestUpload_RejectsEscapingPaths(t *testing.T) {
	d, _ := newTestDisk(t)

	tests := []string{"", "../outside.txt", "public/../../etc/passwd"}
	for _, p := range tests {
		t.Run(p, func(t *testing.T) {
			err := d.Upload(context.Background(), p, strings.NewReader("x"), UploadOptions{Upsert: true})
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestRemove_IgnoresMissing(t *testing.T) {
	d, root := newTestDisk(t)
	ctx := context.Background()
	require.NoError(t, d.Upload(ctx, "public/u1/avatar.jpg", strings.NewReader("x"), UploadOptions{}))

	err := d.Remove(ctx, "public/u1/avatar.png", "public/u1/avatar.jpg", "public/u1/avatar.gif")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "public", "u1", "avatar.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestPublicURL(t *testing.T) {
	d, _ := newTestDisk(t)
	assert.Equal(t, "http://cdn.test/storage/public/u1/avatar.png", d.PublicURL("public/u1/avatar.png"))
}

func TestHandler_ServesObjects(t *testing.T) {
	d, _ := newTestDisk(t)
	require.NoError(t, d.Upload(context.Background(), "public/u1/avatar.png", strings.NewReader("img"), UploadOptions{}))

	srv := httptest.NewServer(http.StripPrefix("/storage", d.Handler()))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/storage/public/u1/avatar.png")
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "img", string(body))

	res2, err := http.Get(srv.URL + "/storage/public/")
	require.NoError(t, err)
	res2.Body.Close()
	assert.Equal(t, http.StatusNotFound, res2.StatusCode)
}
