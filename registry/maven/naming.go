package maven

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// SnapshotSuffix marks snapshot versions.
const SnapshotSuffix = "-SNAPSHOT"

var checksumExtensions = []string{".sha1", ".md5", ".sha256", ".sha512", ".asc"}

// uniqueSnapshotRegexp matches file names of timestamped snapshot builds,
// e.g. lib-1.0-20210601.101500-3-sources.jar. It captures the timestamp,
// the build number and the remainder holding the classifier and extension.
var uniqueSnapshotRegexp = regexp.MustCompile(`-(\d{8}\.\d{6})-(\d+)((?:-[^/]*)?\.[^/]+)$`)

// IsSnapshotVersion reports whether version denotes a snapshot.
func IsSnapshotVersion(version string) bool {
	return strings.HasSuffix(version, SnapshotSuffix)
}

// IsSnapshotPath reports whether p lies in a snapshot version folder or is
// one.
func IsSnapshotPath(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if IsSnapshotVersion(segment) {
			return true
		}
	}
	return false
}

// IsMetadataPath reports whether p is a metadata document or one of its
// checksums.
func IsMetadataPath(p string) bool {
	name := path.Base(p)
	return name == MetadataFileName || strings.HasPrefix(name, MetadataFileName+".")
}

// IsChecksum reports whether name is a checksum or signature file.
func IsChecksum(name string) bool {
	for _, ext := range checksumExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// IsPom reports whether name is a project descriptor.
func IsPom(name string) bool {
	return strings.HasSuffix(name, ".pom")
}

// UniqueSnapshot is a timestamped snapshot build parsed from a file name.
type UniqueSnapshot struct {
	Timestamp   string
	BuildNumber int
	Classifier  string
	Extension   string
}

// ParseUniqueSnapshot extracts the build details from a unique snapshot file
// name. ok is false for any other name.
func ParseUniqueSnapshot(name string) (snap UniqueSnapshot, ok bool) {
	m := uniqueSnapshotRegexp.FindStringSubmatch(name)
	if m == nil {
		return UniqueSnapshot{}, false
	}

	build, err := strconv.Atoi(m[2])
	if err != nil {
		return UniqueSnapshot{}, false
	}

	snap = UniqueSnapshot{Timestamp: m[1], BuildNumber: build}
	rest := m[3]
	if strings.HasPrefix(rest, "-") {
		dot := strings.Index(rest, ".")
		snap.Classifier = rest[1:dot]
		rest = rest[dot:]
	}
	snap.Extension = strings.TrimPrefix(rest, ".")

	return snap, true
}

// IsNewerThan orders builds by build number, then timestamp.
func (s UniqueSnapshot) IsNewerThan(other UniqueSnapshot) bool {
	if s.BuildNumber != other.BuildNumber {
		return s.BuildNumber > other.BuildNumber
	}
	return s.Timestamp > other.Timestamp
}

// Value renders the unique version of s for the given base snapshot
// version, e.g. 1.0-20210601.101500-3 for 1.0-SNAPSHOT.
func (s UniqueSnapshot) Value(baseVersion string) string {
	return strings.TrimSuffix(baseVersion, SnapshotSuffix) + "-" + s.Timestamp + "-" + strconv.Itoa(s.BuildNumber)
}
