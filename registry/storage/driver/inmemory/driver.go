// Package inmemory provides a storage driver keeping all content in memory.
// It is intended for tests and ephemeral nodes.
package inmemory

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	storagedriver "github.com/mavenhub/registry/registry/storage/driver"
	"github.com/mavenhub/registry/registry/storage/driver/factory"
)

const driverName = "inmemory"

func init() {
	factory.Register(driverName, &inMemoryDriverFactory{})
}

// inMemoryDriverFactory implements the factory.StorageDriverFactory interface.
type inMemoryDriverFactory struct{}

func (factory *inMemoryDriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return New(), nil
}

type file struct {
	data    []byte
	modTime time.Time
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// map. Directories exist implicitly while they hold files.
type Driver struct {
	mu    sync.RWMutex
	files map[string]*file
}

var _ storagedriver.StorageDriver = &Driver{}

// New constructs a new Driver.
func New() *Driver {
	return &Driver{files: make(map[string]*file)}
}

// Name implements the StorageDriver interface.
func (d *Driver) Name() string {
	return driverName
}

func checkPath(p string) error {
	if !storagedriver.PathRegexp.MatchString(p) {
		return storagedriver.InvalidPathError{Path: p, DriverName: driverName}
	}
	return nil
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, p string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, ok := d.files[p]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p, DriverName: driverName}
	}
	return append([]byte(nil), f.data...), nil
}

// PutContent stores the []byte content at a location designated by "path".
func (d *Driver) PutContent(ctx context.Context, p string, contents []byte) error {
	if err := checkPath(p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isDirLocked(p) {
		return storagedriver.InvalidPathError{Path: p, DriverName: driverName}
	}
	d.files[p] = &file{data: append([]byte(nil), contents...), modTime: time.Now()}
	return nil
}

// Reader retrieves an io.ReadCloser for the content stored at "path" with a
// given byte offset.
func (d *Driver) Reader(ctx context.Context, p string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset, DriverName: driverName}
	}

	content, err := d.GetContent(ctx, p)
	if err != nil {
		return nil, err
	}
	if offset > int64(len(content)) {
		return nil, storagedriver.InvalidOffsetError{Path: p, Offset: offset, DriverName: driverName}
	}

	return ioutil.NopCloser(bytes.NewReader(content[offset:])), nil
}

// Writer returns a FileWriter which will store the content written to it at
// the location designated by "path" after the call to Commit.
func (d *Driver) Writer(ctx context.Context, p string) (storagedriver.FileWriter, error) {
	if err := checkPath(p); err != nil {
		return nil, err
	}
	return &writer{d: d, path: p}, nil
}

// Stat returns info about the provided path.
func (d *Driver) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if f, ok := d.files[p]; ok {
		return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
			Path:    p,
			Size:    int64(len(f.data)),
			ModTime: f.modTime,
		}}, nil
	}

	if d.isDirLocked(p) {
		return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
			Path:  p,
			IsDir: true,
		}}, nil
	}

	return nil, storagedriver.PathNotFoundError{Path: p, DriverName: driverName}
}

// List returns a list of the objects that are direct descendants of the given
// path.
func (d *Driver) List(ctx context.Context, p string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	prefix := dirPrefix(p)
	seen := make(map[string]struct{})
	for key := range d.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		seen[path.Join("/", prefix, rest)] = struct{}{}
	}

	if len(seen) == 0 && p != "/" {
		return nil, storagedriver.PathNotFoundError{Path: p, DriverName: driverName}
	}

	children := make([]string, 0, len(seen))
	for child := range seen {
		children = append(children, child)
	}
	sort.Strings(children)

	return children, nil
}

// Move moves an object stored at sourcePath to destPath, removing the
// original object.
func (d *Driver) Move(ctx context.Context, sourcePath string, destPath string) error {
	if err := checkPath(destPath); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[sourcePath]
	if !ok {
		return storagedriver.PathNotFoundError{Path: sourcePath, DriverName: driverName}
	}
	delete(d.files, sourcePath)
	d.files[destPath] = f

	return nil
}

// Delete recursively deletes all objects stored at "path" and its subpaths.
func (d *Driver) Delete(ctx context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := false
	if _, ok := d.files[p]; ok {
		delete(d.files, p)
		found = true
	}

	prefix := dirPrefix(p)
	for key := range d.files {
		if strings.HasPrefix(key, prefix) {
			delete(d.files, key)
			found = true
		}
	}

	if !found {
		return storagedriver.PathNotFoundError{Path: p, DriverName: driverName}
	}
	return nil
}

// Chtimes sets the modification time of the file at "path".
func (d *Driver) Chtimes(ctx context.Context, p string, mtime time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[p]
	if !ok {
		return storagedriver.PathNotFoundError{Path: p, DriverName: driverName}
	}
	f.modTime = mtime
	return nil
}

// Walk traverses a filesystem defined within driver, starting from the given
// path, calling f on each file.
func (d *Driver) Walk(ctx context.Context, p string, f storagedriver.WalkFn) error {
	return storagedriver.WalkFallback(ctx, d, p, f)
}

func (d *Driver) isDirLocked(p string) bool {
	prefix := dirPrefix(p)
	for key := range d.files {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func dirPrefix(p string) string {
	if p == "/" {
		return "/"
	}
	return p + "/"
}

type writer struct {
	d         *Driver
	path      string
	buf       bytes.Buffer
	closed    bool
	committed bool
	cancelled bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed || w.committed || w.cancelled {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *writer) Size() int64 {
	return int64(w.buf.Len())
}

func (w *writer) Close() error {
	w.closed = true
	return nil
}

func (w *writer) Cancel() error {
	w.cancelled = true
	w.buf.Reset()
	return nil
}

func (w *writer) Commit() error {
	if w.cancelled {
		return io.ErrClosedPipe
	}
	if w.committed {
		return nil
	}
	w.committed = true
	return w.d.PutContent(context.Background(), w.path, w.buf.Bytes())
}
