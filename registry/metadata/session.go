package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"

	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/repository"
)

// DeletedItem is an item removed from storage.
type DeletedItem struct {
	Path   repository.RepoPath
	Folder bool
}

// Session collects deletions and recalculates the affected metadata
// documents on Flush.
type Session struct {
	calc *Calculator

	mu      sync.Mutex
	pending []DeletedItem
}

// RecordDeletion queues the recalculation of the metadata document on the
// parent of item. It must be called before item is removed from storage.
// Deletions below folders without metadata are ignored. Recording a folder
// drops queued items inside it.
func (s *Session) RecordDeletion(ctx context.Context, item DeletedItem) error {
	if item.Path.IsRoot() {
		return nil
	}

	if item.Folder {
		s.mu.Lock()
		kept := s.pending[:0]
		for _, p := range s.pending {
			if p.Path.Parent() != item.Path {
				kept = append(kept, p)
			}
		}
		s.pending = kept
		s.mu.Unlock()
	}

	md, err := s.calc.storage.MetadataDocument(ctx, item.Path.Parent())
	if err != nil {
		return fmt.Errorf("checking metadata of %s: %w", item.Path.Parent(), err)
	}
	if md == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pending {
		if p == item {
			return nil
		}
	}
	s.pending = append(s.pending, item)

	return nil
}

// Pending returns the number of queued deletions.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush recalculates the metadata of every queued deletion and empties the
// queue. A failing item is logged and reported without stopping the others.
// It returns the number of updated documents.
func (s *Session) Flush(ctx context.Context) int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var updated int
	for _, item := range pending {
		report := recalculation(triggerDeletion)
		changed, err := s.calc.recalculateOnDeletion(ctx, item)
		report(changed, err)

		if err != nil {
			s.calc.logAndReportErr(ctx, fmt.Errorf("%w: %s: %v", ErrMetadataRecalc, item.Path.Parent(), err), item.Path)
			continue
		}
		if changed {
			updated++
		}
	}

	if len(pending) > 0 {
		dcontext.GetLoggerWithFields(ctx, map[interface{}]interface{}{
			"pending": len(pending),
			"updated": updated,
		}).Info("metadata flushed")
	}

	return updated
}

func (c *Calculator) recalculateOnDeletion(ctx context.Context, item DeletedItem) (bool, error) {
	container := item.Path.Parent()

	unlock := c.locker.Lock(container.String())
	defer unlock()

	md, err := c.storage.MetadataDocument(ctx, container)
	if err != nil {
		return false, err
	}
	// removed since recorded
	if md == nil {
		return false, nil
	}

	var changed bool
	snapshotContainer := maven.IsSnapshotPath(container.Path)

	if item.Folder && !snapshotContainer && md.Versioning != nil {
		if c.removeVersion(md, item.Path.Name()) {
			changed = true
		}
	}

	if !item.Folder && snapshotContainer && md.Versioning != nil && md.Versioning.Snapshot != nil {
		ok, err := c.repointSnapshot(ctx, container, md, item.Path.Name())
		if err != nil {
			return false, err
		}
		if ok {
			changed = true
		}
	}

	if len(md.Plugins) > 0 && !c.isCache(container.RepoKey) {
		if removePlugin(md, item.Path.Name()) {
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	if md.Versioning != nil {
		md.Versioning.LastUpdated = c.now()
	}
	if err := c.storage.SetMetadataDocument(ctx, container, md); err != nil {
		return false, err
	}

	dcontext.GetLoggerWithField(ctx, "path", container.String()).Debug("metadata updated after deletion")

	return true, nil
}

// removeVersion drops version from the version list. Deleting a version
// which is not listed changes nothing.
func (c *Calculator) removeVersion(md *maven.Metadata, version string) bool {
	versions := make([]string, 0, len(md.Versioning.Versions))
	var found bool
	for _, v := range md.Versioning.Versions {
		if v == version {
			found = true
			continue
		}
		versions = append(versions, v)
	}
	if !found {
		return false
	}

	c.setVersions(md.Versioning, versions)
	if len(versions) > 0 {
		md.Version = md.Versioning.Latest
	}

	return true
}

// repointSnapshot moves the snapshot pointer to the newest remaining build
// when the deleted file was the build it pointed at. Without remaining
// builds the pointer is left as is.
func (c *Calculator) repointSnapshot(ctx context.Context, container repository.RepoPath, md *maven.Metadata, deleted string) (bool, error) {
	snap, ok := maven.ParseUniqueSnapshot(deleted)
	if !ok || maven.IsChecksum(deleted) {
		return false, nil
	}
	if snap.Timestamp != md.Versioning.Snapshot.Timestamp {
		return false, nil
	}

	children, err := c.storage.ListChildren(ctx, container)
	if err != nil {
		return false, err
	}

	var remaining []repository.RepoResource
	for _, child := range children {
		if child.RepoPath.Name() != deleted {
			remaining = append(remaining, child)
		}
	}

	latest, versions, ok := uniqueSnapshots(container.Name(), remaining)
	if !ok {
		dcontext.GetLoggerWithField(ctx, "path", container.String()).Info("no remaining snapshot build, keeping snapshot pointer")
		return false, nil
	}

	md.Versioning.Snapshot.Timestamp = latest.Timestamp
	md.Versioning.Snapshot.BuildNumber = latest.BuildNumber
	if len(md.Versioning.SnapshotVersions) > 0 {
		md.Versioning.SnapshotVersions = versions
	}

	return true, nil
}

// uniqueSnapshots finds the newest unique snapshot build among files and
// the newest build of every classifier and extension.
func uniqueSnapshots(baseVersion string, files []repository.RepoResource) (maven.UniqueSnapshot, maven.SnapshotVersions, bool) {
	type artifactKey struct{ classifier, extension string }

	var (
		latest maven.UniqueSnapshot
		found  bool
		keys   []artifactKey
	)
	newest := make(map[artifactKey]maven.UniqueSnapshot)

	for _, f := range files {
		name := f.RepoPath.Name()
		if f.Folder || maven.IsChecksum(name) {
			continue
		}
		snap, ok := maven.ParseUniqueSnapshot(name)
		if !ok {
			continue
		}

		if !found || snap.IsNewerThan(latest) {
			latest = snap
			found = true
		}

		k := artifactKey{snap.Classifier, snap.Extension}
		prev, seen := newest[k]
		if !seen {
			keys = append(keys, k)
		}
		if !seen || snap.IsNewerThan(prev) {
			newest[k] = snap
		}
	}

	versions := make(maven.SnapshotVersions, 0, len(keys))
	for _, k := range keys {
		snap := newest[k]
		versions = append(versions, maven.SnapshotVersion{
			Classifier: snap.Classifier,
			Extension:  snap.Extension,
			Value:      snap.Value(baseVersion),
			Updated:    snapshotUpdated(snap.Timestamp),
		})
	}

	return latest, versions, found
}

// snapshotUpdated converts a snapshot timestamp to the lastUpdated layout.
func snapshotUpdated(timestamp string) string {
	return strings.ReplaceAll(timestamp, ".", "")
}

func removePlugin(md *maven.Metadata, artifactID string) bool {
	plugins := md.Plugins[:0]
	for _, p := range md.Plugins {
		if p.ArtifactID != artifactID {
			plugins = append(plugins, p)
		}
	}
	removed := len(plugins) != len(md.Plugins)
	md.Plugins = plugins
	return removed
}
