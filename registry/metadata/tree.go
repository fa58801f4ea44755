package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/repository"
)

// TreeReport summarises a full recalculation.
type TreeReport struct {
	Folders int
	Updated int
	Removed int
	Errors  error
}

// versionFolder is a subfolder holding a project descriptor.
type versionFolder struct {
	name string
	pom  repository.RepoPath
}

// RecalculateTree rebuilds the metadata documents of root and every folder
// below it from their content. Folders that are neither a versions nor a
// snapshots container lose any metadata they carry. Failures are collected
// in the report and do not stop the traversal.
func (c *Calculator) RecalculateTree(ctx context.Context, root repository.RepoPath) TreeReport {
	log := dcontext.GetLoggerWithField(ctx, "root", root.String())
	log.Info("recalculating metadata tree")

	var report TreeReport
	var errs *multierror.Error
	c.walkTree(ctx, root, &report, &errs)
	report.Errors = errs.ErrorOrNil()

	var failed int
	if errs != nil {
		failed = len(errs.Errors)
	}

	log.WithFields(map[string]interface{}{
		"folders": report.Folders,
		"updated": report.Updated,
		"removed": report.Removed,
		"failed":  failed,
	}).Info("metadata tree recalculated")

	return report
}

// walkTree recalculates folder bottom up and returns the project
// descriptor found directly in folder, if any.
func (c *Calculator) walkTree(ctx context.Context, folder repository.RepoPath, report *TreeReport, errs **multierror.Error) (repository.RepoPath, bool) {
	if err := ctx.Err(); err != nil {
		*errs = multierror.Append(*errs, err)
		return repository.RepoPath{}, false
	}

	children, err := c.storage.ListChildren(ctx, folder)
	if err != nil {
		if !errors.Is(err, repository.ErrResourceNotFound) {
			*errs = multierror.Append(*errs, fmt.Errorf("listing %s: %w", folder, err))
		}
		return repository.RepoPath{}, false
	}

	var versions []versionFolder
	for _, child := range children {
		if !child.Folder {
			continue
		}
		if pom, ok := c.walkTree(ctx, child.RepoPath, report, errs); ok {
			versions = append(versions, versionFolder{name: child.RepoPath.Name(), pom: pom})
		}
	}

	report.Folders++
	done := recalculation(triggerTree)
	outcome, err := c.recalculateFolder(ctx, folder, children, versions, true)
	done(outcome != unchanged, err)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %s: %v", ErrMetadataRecalc, folder, err)
		c.logAndReportErr(ctx, err, folder)
		*errs = multierror.Append(*errs, err)
	case outcome == updated:
		report.Updated++
	case outcome == removed:
		report.Removed++
	}

	return pomOf(children)
}

// ItemDeployed updates the metadata affected by a new item: the snapshot
// pointer of its snapshot version folder and the version list of its
// artifact folder. Metadata is never removed here.
func (c *Calculator) ItemDeployed(ctx context.Context, p repository.RepoPath) error {
	name := p.Name()
	if p.IsRoot() || maven.IsMetadataPath(name) || maven.IsChecksum(name) {
		return nil
	}

	versionDir := p.Parent()
	var result *multierror.Error

	if maven.IsSnapshotVersion(versionDir.Name()) {
		if _, ok := maven.ParseUniqueSnapshot(name); ok {
			if err := c.recalculateShallow(ctx, versionDir); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	if maven.IsPom(name) && !versionDir.IsRoot() {
		if err := c.recalculateShallow(ctx, versionDir.Parent()); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func (c *Calculator) recalculateShallow(ctx context.Context, folder repository.RepoPath) error {
	done := recalculation(triggerDeploy)

	outcome, err := func() (folderOutcome, error) {
		children, err := c.storage.ListChildren(ctx, folder)
		if err != nil {
			return unchanged, err
		}

		var versions []versionFolder
		for _, child := range children {
			if !child.Folder {
				continue
			}
			grandChildren, err := c.storage.ListChildren(ctx, child.RepoPath)
			if err != nil {
				if errors.Is(err, repository.ErrResourceNotFound) {
					continue
				}
				return unchanged, err
			}
			if pom, ok := pomOf(grandChildren); ok {
				versions = append(versions, versionFolder{name: child.RepoPath.Name(), pom: pom})
			}
		}

		return c.recalculateFolder(ctx, folder, children, versions, false)
	}()

	done(outcome != unchanged, err)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrMetadataRecalc, folder, err)
		c.logAndReportErr(ctx, err, folder)
		return err
	}
	return nil
}

type folderOutcome int

const (
	unchanged folderOutcome = iota
	updated
	removed
)

// recalculateFolder writes the metadata document of folder built from its
// content. With authoritative set, folders of neither shape lose their
// metadata.
func (c *Calculator) recalculateFolder(ctx context.Context, folder repository.RepoPath, children []repository.RepoResource, versions []versionFolder, authoritative bool) (folderOutcome, error) {
	unlock := c.locker.Lock(folder.String())
	defer unlock()

	var md *maven.Metadata

	switch {
	case isSnapshotsContainer(folder, children):
		md = c.snapshotMetadata(ctx, folder, children)
	case len(versions) > 0:
		md = c.versionsMetadata(ctx, folder, versions)
	case authoritative:
		existing, err := c.storage.MetadataDocument(ctx, folder)
		if err != nil {
			return unchanged, err
		}
		if existing == nil {
			return unchanged, nil
		}
		if err := c.storage.RemoveMetadataDocument(ctx, folder); err != nil {
			return unchanged, err
		}
		dcontext.GetLoggerWithField(ctx, "path", folder.String()).Info("removed orphan metadata")
		return removed, nil
	default:
		return unchanged, nil
	}

	if err := c.storage.SetMetadataDocument(ctx, folder, md); err != nil {
		return unchanged, err
	}
	return updated, nil
}

func isSnapshotsContainer(folder repository.RepoPath, children []repository.RepoResource) bool {
	if !maven.IsSnapshotVersion(folder.Name()) {
		return false
	}
	for _, child := range children {
		if !child.Folder {
			return true
		}
	}
	return false
}

func pomOf(children []repository.RepoResource) (repository.RepoPath, bool) {
	for _, child := range children {
		if !child.Folder && maven.IsPom(child.RepoPath.Name()) {
			return child.RepoPath, true
		}
	}
	return repository.RepoPath{}, false
}

// coordinates reads the group and artifact of the descriptor at pom,
// falling back to the folder layout when it cannot be read.
func (c *Calculator) coordinates(ctx context.Context, pom repository.RepoPath, artifactFolder repository.RepoPath) maven.Coordinates {
	fallback := maven.CoordinatesFromPath(artifactFolder.Path)

	rc, err := c.storage.Open(ctx, pom)
	if err != nil {
		dcontext.GetLoggerWithField(ctx, "path", pom.String()).WithError(err).Warn("failed to open pom, using path coordinates")
		return fallback
	}
	defer rc.Close()

	coords, err := maven.ReadPomCoordinates(rc)
	if err != nil {
		dcontext.GetLoggerWithField(ctx, "path", pom.String()).WithError(err).Warn("failed to read pom, using path coordinates")
		return fallback
	}
	return coords
}

func (c *Calculator) versionsMetadata(ctx context.Context, folder repository.RepoPath, versions []versionFolder) *maven.Metadata {
	coords := c.coordinates(ctx, versions[0].pom, folder)

	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, v.name)
	}

	md := &maven.Metadata{
		GroupID:    coords.GroupID,
		ArtifactID: coords.ArtifactID,
		Versioning: &maven.Versioning{},
	}
	c.setVersions(md.Versioning, names)
	md.Versioning.LastUpdated = c.now()

	return md
}

func (c *Calculator) snapshotMetadata(ctx context.Context, folder repository.RepoPath, children []repository.RepoResource) *maven.Metadata {
	coords := maven.CoordinatesFromPath(folder.Parent().Path)
	if pom, ok := pomOf(children); ok {
		coords = c.coordinates(ctx, pom, folder.Parent())
	}

	md := &maven.Metadata{
		GroupID:    coords.GroupID,
		ArtifactID: coords.ArtifactID,
		Version:    folder.Name(),
		Versioning: &maven.Versioning{LastUpdated: c.now()},
	}

	if latest, versions, ok := uniqueSnapshots(folder.Name(), children); ok {
		md.Versioning.Snapshot = &maven.Snapshot{
			Timestamp:   latest.Timestamp,
			BuildNumber: latest.BuildNumber,
		}
		md.Versioning.SnapshotVersions = versions
	}

	return md
}
