package driver

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// ErrSkipDir is used as a return value from a WalkFn to indicate that the
// directory named in the call is to be skipped. It is not returned as an
// error by any function.
var ErrSkipDir = errors.New("skip this directory")

// WalkFn is called once per file by Walk.
type WalkFn func(fileInfo FileInfo) error

// WalkFallback traverses the tree below from in lexical order, calling f on
// each entry. It relies on List and Stat only. Returning ErrSkipDir for a
// directory prunes it, returning it for a file ends the traversal of the
// enclosing directory. Entries removed between List and Stat are ignored.
func WalkFallback(ctx context.Context, driver StorageDriver, from string, f WalkFn) error {
	children, err := driver.List(ctx, from)
	if err != nil {
		return err
	}
	sort.Strings(children)

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		fileInfo, err := driver.Stat(ctx, child)
		if err != nil {
			if errors.As(err, &PathNotFoundError{}) {
				logrus.WithField("path", child).Info("ignoring deleted path")
				continue
			}
			return err
		}

		err = f(fileInfo)
		switch {
		case err == nil:
			if fileInfo.IsDir() {
				if err := WalkFallback(ctx, driver, child, f); err != nil {
					return err
				}
			}
		case errors.Is(err, ErrSkipDir):
			if !fileInfo.IsDir() {
				return nil
			}
		default:
			return err
		}
	}

	return nil
}

// WalkFallbackParallel is similar to WalkFallback, but visits the children
// of each directory concurrently. Visit order is not defined and f must be
// safe for concurrent use. All errors met are returned together.
func WalkFallbackParallel(ctx context.Context, driver StorageDriver, from string, f WalkFn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)

	report := func(err error) {
		mu.Lock()
		result = multierror.Append(result, err)
		mu.Unlock()
		cancel()
	}

	var walk func(dir string)
	walk = func(dir string) {
		defer wg.Done()

		if ctx.Err() != nil {
			return
		}
		children, err := driver.List(ctx, dir)
		if err != nil {
			report(err)
			return
		}

		for _, child := range children {
			fileInfo, err := driver.Stat(ctx, child)
			if err != nil {
				if errors.As(err, &PathNotFoundError{}) {
					logrus.WithField("path", child).Info("ignoring deleted path")
					continue
				}
				report(err)
				return
			}

			err = f(fileInfo)
			if err == nil && fileInfo.IsDir() {
				wg.Add(1)
				go walk(child)
				continue
			}
			if err != nil && !(errors.Is(err, ErrSkipDir) && fileInfo.IsDir()) {
				report(err)
				return
			}
		}
	}

	wg.Add(1)
	walk(from)
	wg.Wait()

	return result.ErrorOrNil()
}
