// Package filesystem provides a storage driver backed by a local directory.
package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	storagedriver "github.com/mavenhub/registry/registry/storage/driver"
	"github.com/mavenhub/registry/registry/storage/driver/factory"
)

const (
	driverName           = "filesystem"
	defaultRootDirectory = "/var/lib/registry"
	defaultMaxThreads    = uint64(100)

	// minThreads is the minimum value for the maxthreads configuration
	// parameter. If the driver's parameters are less than this we set
	// the parameters to minThreads
	minThreads = uint64(25)
)

// DriverParameters represents all configuration options available for the
// filesystem driver
type DriverParameters struct {
	RootDirectory string
	MaxThreads    uint64
}

func init() {
	factory.Register(driverName, &filesystemDriverFactory{})
}

// filesystemDriverFactory implements the factory.StorageDriverFactory interface
type filesystemDriverFactory struct{}

func (factory *filesystemDriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return FromParameters(parameters)
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// filesystem. All provided paths will be subpaths of the RootDirectory.
type Driver struct {
	rootDirectory string
	sem           chan struct{}
}

var _ storagedriver.StorageDriver = &Driver{}

// FromParameters constructs a new Driver with a given parameters map
// Optional Parameters:
// - rootdirectory
// - maxthreads
func FromParameters(parameters map[string]interface{}) (*Driver, error) {
	params, err := fromParametersImpl(parameters)
	if err != nil || params == nil {
		return nil, err
	}
	return New(*params), nil
}

func fromParametersImpl(parameters map[string]interface{}) (*DriverParameters, error) {
	var (
		err           error
		maxThreads    = defaultMaxThreads
		rootDirectory = defaultRootDirectory
	)

	if parameters != nil {
		if rootDir, ok := parameters["rootdirectory"]; ok {
			rootDirectory = fmt.Sprint(rootDir)
		}

		if v, ok := parameters["maxthreads"]; ok {
			maxThreads, err = parseUint(v)
			if err != nil {
				return nil, fmt.Errorf("maxthreads config error: %w", err)
			}
			if maxThreads < minThreads {
				maxThreads = minThreads
			}
		}
	}

	return &DriverParameters{
		RootDirectory: rootDirectory,
		MaxThreads:    maxThreads,
	}, nil
}

func parseUint(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseUint(n, 0, 64)
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case nil:
		return defaultMaxThreads, nil
	default:
		return 0, fmt.Errorf("invalid value %#v", v)
	}
}

// New constructs a new Driver with a given rootDirectory
func New(params DriverParameters) *Driver {
	return &Driver{
		rootDirectory: params.RootDirectory,
		sem:           make(chan struct{}, params.MaxThreads),
	}
}

func (d *Driver) enter() func() {
	d.sem <- struct{}{}
	return func() { <-d.sem }
}

// Name implements the StorageDriver interface.
func (d *Driver) Name() string {
	return driverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, subPath string) ([]byte, error) {
	rc, err := d.Reader(ctx, subPath, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return ioutil.ReadAll(rc)
}

// PutContent stores the []byte content at a location designated by "path".
func (d *Driver) PutContent(ctx context.Context, subPath string, contents []byte) error {
	w, err := d.Writer(ctx, subPath)
	if err != nil {
		return err
	}
	defer w.Close()

	if _, err := w.Write(contents); err != nil {
		w.Cancel()
		return err
	}
	return w.Commit()
}

// Reader retrieves an io.ReadCloser for the content stored at "path" with a
// given byte offset.
func (d *Driver) Reader(ctx context.Context, subPath string, offset int64) (io.ReadCloser, error) {
	done := d.enter()
	defer done()

	file, err := os.OpenFile(d.fullPath(subPath), os.O_RDONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return nil, err
	}

	seekPos, err := file.Seek(offset, io.SeekStart)
	if err != nil {
		file.Close()
		return nil, err
	} else if seekPos < offset {
		file.Close()
		return nil, storagedriver.InvalidOffsetError{Path: subPath, Offset: offset, DriverName: driverName}
	}

	return file, nil
}

// Writer returns a FileWriter which will store the content written to it at
// the location designated by "path" after the call to Commit.
func (d *Driver) Writer(ctx context.Context, subPath string) (storagedriver.FileWriter, error) {
	if !storagedriver.PathRegexp.MatchString(subPath) {
		return nil, storagedriver.InvalidPathError{Path: subPath, DriverName: driverName}
	}

	done := d.enter()
	defer done()

	fullPath := d.fullPath(subPath)
	if err := os.MkdirAll(path.Dir(fullPath), 0777); err != nil {
		return nil, err
	}

	fp, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}

	return newFileWriter(fp), nil
}

// Stat retrieves the FileInfo for the given path, including the current size
// in bytes and the modification time.
func (d *Driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	done := d.enter()
	defer done()

	fi, err := os.Stat(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return nil, err
	}

	return fileInfo{path: subPath, FileInfo: fi}, nil
}

// List returns a list of the objects that are direct descendants of the given
// path.
func (d *Driver) List(ctx context.Context, subPath string) ([]string, error) {
	done := d.enter()
	defer done()

	entries, err := ioutil.ReadDir(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, path.Join(subPath, e.Name()))
	}
	sort.Strings(keys)

	return keys, nil
}

// Move moves an object stored at sourcePath to destPath, removing the
// original object.
func (d *Driver) Move(ctx context.Context, sourcePath string, destPath string) error {
	done := d.enter()
	defer done()

	source := d.fullPath(sourcePath)
	dest := d.fullPath(destPath)

	if _, err := os.Stat(source); os.IsNotExist(err) {
		return storagedriver.PathNotFoundError{Path: sourcePath, DriverName: driverName}
	}
	if err := os.MkdirAll(path.Dir(dest), 0777); err != nil {
		return err
	}

	return os.Rename(source, dest)
}

// Delete recursively deletes all objects stored at "path" and its subpaths.
// Parent directories left empty are removed as well.
func (d *Driver) Delete(ctx context.Context, subPath string) error {
	done := d.enter()
	defer done()

	fullPath := d.fullPath(subPath)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return err
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return err
	}

	d.pruneEmptyParents(path.Dir(subPath))
	return nil
}

// pruneEmptyParents removes dir and its ancestors while they are empty.
// Failures leave empty directories behind, which is harmless.
func (d *Driver) pruneEmptyParents(dir string) {
	for dir != "/" && dir != "." {
		if err := os.Remove(d.fullPath(dir)); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

// Chtimes sets the modification time of the file at "path".
func (d *Driver) Chtimes(ctx context.Context, subPath string, mtime time.Time) error {
	done := d.enter()
	defer done()

	if err := os.Chtimes(d.fullPath(subPath), mtime, mtime); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return err
	}
	return nil
}

// Walk traverses a filesystem defined within driver, starting from the given
// path, calling f on each file.
func (d *Driver) Walk(ctx context.Context, subPath string, f storagedriver.WalkFn) error {
	return storagedriver.WalkFallback(ctx, d, subPath, f)
}

// fullPath returns the absolute path of a key within the Driver's storage.
func (d *Driver) fullPath(subPath string) string {
	return filepath.Join(d.rootDirectory, filepath.FromSlash(subPath))
}

type fileInfo struct {
	os.FileInfo
	path string
}

var _ storagedriver.FileInfo = fileInfo{}

// Path provides the full path of the target of this file info.
func (fi fileInfo) Path() string {
	return fi.path
}

// Size returns current length in bytes of the file. The return value can be
// used to write to the end of the file at path. The value is meaningless if
// IsDir returns true.
func (fi fileInfo) Size() int64 {
	if fi.IsDir() {
		return 0
	}

	return fi.FileInfo.Size()
}

// ModTime returns the modification time for the file.
func (fi fileInfo) ModTime() time.Time {
	return fi.FileInfo.ModTime()
}

// IsDir returns true if the path is a directory.
func (fi fileInfo) IsDir() bool {
	return fi.FileInfo.IsDir()
}

type fileWriter struct {
	file      *os.File
	size      int64
	bw        *bufio.Writer
	closed    bool
	committed bool
	cancelled bool
}

func newFileWriter(file *os.File) *fileWriter {
	return &fileWriter{
		file: file,
		bw:   bufio.NewWriter(file),
	}
}

func (fw *fileWriter) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, fmt.Errorf("already closed")
	} else if fw.committed {
		return 0, fmt.Errorf("already committed")
	} else if fw.cancelled {
		return 0, fmt.Errorf("already cancelled")
	}
	n, err := fw.bw.Write(p)
	fw.size += int64(n)
	return n, err
}

func (fw *fileWriter) Size() int64 {
	return fw.size
}

func (fw *fileWriter) Close() error {
	if fw.closed {
		return nil
	}

	if !fw.cancelled {
		if err := fw.bw.Flush(); err != nil {
			return err
		}
		if err := fw.file.Sync(); err != nil {
			return err
		}
	}

	if err := fw.file.Close(); err != nil {
		return err
	}
	fw.closed = true
	return nil
}

func (fw *fileWriter) Cancel() error {
	if fw.closed {
		return fmt.Errorf("already closed")
	}

	fw.cancelled = true
	fw.file.Close()
	fw.closed = true
	return os.Remove(fw.file.Name())
}

func (fw *fileWriter) Commit() error {
	if fw.closed {
		return fmt.Errorf("already closed")
	} else if fw.committed {
		return fmt.Errorf("already committed")
	} else if fw.cancelled {
		return fmt.Errorf("already cancelled")
	}

	if err := fw.bw.Flush(); err != nil {
		return err
	}

	if err := fw.file.Sync(); err != nil {
		return err
	}

	fw.committed = true
	return nil
}
