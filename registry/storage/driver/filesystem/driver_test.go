package filesystem

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"testing"
	"time"

	storagedriver "github.com/mavenhub/registry/registry/storage/driver"
	"github.com/stretchr/testify/require"
)

func newTempDirDriver(t *testing.T) (*Driver, func()) {
	t.Helper()

	rootDir, err := ioutil.TempDir("", "driver-")
	require.NoError(t, err)

	d, err := FromParameters(map[string]interface{}{
		"rootdirectory": rootDir,
	})
	require.NoError(t, err)

	return d, func() { os.RemoveAll(rootDir) }
}

func TestFromParametersImpl(t *testing.T) {
	tests := []struct {
		params   map[string]interface{} // technically the yaml can contain anything
		expected DriverParameters
		pass     bool
	}{
		// check we use default threads and root dirs
		{
			params: map[string]interface{}{},
			expected: DriverParameters{
				RootDirectory: defaultRootDirectory,
				MaxThreads:    defaultMaxThreads,
			},
			pass: true,
		},
		// Testing initiation with a string maxThreads which can't be parsed
		{
			params: map[string]interface{}{
				"maxthreads": "fail",
			},
			pass: false,
		},
		{
			params: map[string]interface{}{
				"maxthreads": "100",
			},
			expected: DriverParameters{
				RootDirectory: defaultRootDirectory,
				MaxThreads:    uint64(100),
			},
			pass: true,
		},
		{
			params: map[string]interface{}{
				"maxthreads":    100,
				"rootdirectory": "/srv/maven",
			},
			expected: DriverParameters{
				RootDirectory: "/srv/maven",
				MaxThreads:    uint64(100),
			},
			pass: true,
		},
		// check that we use minimum thread counts
		{
			params: map[string]interface{}{
				"maxthreads": 1,
			},
			expected: DriverParameters{
				RootDirectory: defaultRootDirectory,
				MaxThreads:    minThreads,
			},
			pass: true,
		},
	}

	for _, item := range tests {
		params, err := fromParametersImpl(item.params)

		if !item.pass {
			// We only need to assert that expected failures have an error
			require.Error(t, err)
			continue
		}

		require.NoError(t, err)

		// Note that we get a pointer to params back
		require.Equal(t, item.expected, *params)
	}
}

func TestPutContentAndList(t *testing.T) {
	d, cleanup := newTempDirDriver(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, d.PutContent(ctx, "/libs/org/acme/lib/1.0/lib-1.0.jar", []byte("jar")))
	require.NoError(t, d.PutContent(ctx, "/libs/org/acme/lib/1.0/lib-1.0.pom", []byte("pom")))

	content, err := d.GetContent(ctx, "/libs/org/acme/lib/1.0/lib-1.0.jar")
	require.NoError(t, err)
	require.Equal(t, "jar", string(content))

	children, err := d.List(ctx, "/libs/org/acme/lib/1.0")
	require.NoError(t, err)
	require.Equal(t, []string{"/libs/org/acme/lib/1.0/lib-1.0.jar", "/libs/org/acme/lib/1.0/lib-1.0.pom"}, children)

	fi, err := d.Stat(ctx, "/libs/org/acme/lib")
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	require.Zero(t, fi.Size())
}

func TestMoveAndChtimes(t *testing.T) {
	d, cleanup := newTempDirDriver(t)
	defer cleanup()
	ctx := context.Background()
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, d.PutContent(ctx, "/libs/_uploads/tmp", []byte("x")))
	require.NoError(t, d.Move(ctx, "/libs/_uploads/tmp", "/libs/org/a.jar"))
	require.NoError(t, d.Chtimes(ctx, "/libs/org/a.jar", mtime))

	fi, err := d.Stat(ctx, "/libs/org/a.jar")
	require.NoError(t, err)
	require.True(t, mtime.Equal(fi.ModTime()))

	err = d.Move(ctx, "/libs/_uploads/missing", "/libs/org/b.jar")
	require.True(t, errors.As(err, &storagedriver.PathNotFoundError{}))
}

// TestDeleteEmptyParentDir checks that Delete removes parent directories if empty.
func TestDeleteEmptyParentDir(t *testing.T) {
	d, cleanup := newTempDirDriver(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, d.PutContent(ctx, "/testdir/testfile", []byte("contents")))
	require.NoError(t, d.Delete(ctx, "/testdir/testfile"))

	_, err := d.Stat(ctx, "/testdir/testfile")
	require.True(t, errors.As(err, &storagedriver.PathNotFoundError{}))

	_, err = d.Stat(ctx, "/testdir")
	require.True(t, errors.As(err, &storagedriver.PathNotFoundError{}))
}

// TestDeleteNonEmptyParentDir checks that Delete does not remove parent directories if not empty.
func TestDeleteNonEmptyParentDir(t *testing.T) {
	d, cleanup := newTempDirDriver(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, d.PutContent(ctx, "/testdir/testfile", []byte("contents")))
	require.NoError(t, d.PutContent(ctx, "/testdir/testfile2", []byte("contents")))
	require.NoError(t, d.Delete(ctx, "/testdir/testfile"))

	_, err := d.Stat(ctx, "/testdir")
	require.NoError(t, err)

	err = d.Delete(ctx, "/testdir/testfile")
	require.True(t, errors.As(err, &storagedriver.PathNotFoundError{}))
}

func TestWriterCancel(t *testing.T) {
	d, cleanup := newTempDirDriver(t)
	defer cleanup()
	ctx := context.Background()

	w, err := d.Writer(ctx, "/libs/_uploads/tmp")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Cancel())

	_, err = d.Stat(ctx, "/libs/_uploads/tmp")
	require.True(t, errors.As(err, &storagedriver.PathNotFoundError{}))
}
