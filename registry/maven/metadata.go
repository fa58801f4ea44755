// Package maven implements maven repository layout conventions: metadata
// documents, snapshot naming and version ordering.
package maven

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

// MetadataFileName is the name of the metadata document maintained for
// folders of a maven repository.
const MetadataFileName = "maven-metadata.xml"

const lastUpdatedLayout = "20060102150405"

// Metadata is a maven-metadata.xml document.
type Metadata struct {
	XMLName      xml.Name    `xml:"metadata"`
	ModelVersion string      `xml:"modelVersion,attr,omitempty"`
	GroupID      string      `xml:"groupId,omitempty"`
	ArtifactID   string      `xml:"artifactId,omitempty"`
	Version      string      `xml:"version,omitempty"`
	Versioning   *Versioning `xml:"versioning,omitempty"`
	Plugins      Plugins     `xml:"plugins,omitempty"`
}

// Versioning holds the version list of an artifact, or the snapshot pointer
// of a snapshot version.
type Versioning struct {
	Latest           string           `xml:"latest,omitempty"`
	Release          string           `xml:"release,omitempty"`
	Snapshot         *Snapshot        `xml:"snapshot,omitempty"`
	Versions         Versions         `xml:"versions,omitempty"`
	LastUpdated      string           `xml:"lastUpdated,omitempty"`
	SnapshotVersions SnapshotVersions `xml:"snapshotVersions,omitempty"`
}

// Snapshot points at the latest build of a snapshot version.
type Snapshot struct {
	Timestamp   string `xml:"timestamp,omitempty"`
	BuildNumber int    `xml:"buildNumber,omitempty"`
	LocalCopy   bool   `xml:"localCopy,omitempty"`
}

// SnapshotVersion is the latest build of one classifier and extension of a
// snapshot version.
type SnapshotVersion struct {
	Classifier string `xml:"classifier,omitempty"`
	Extension  string `xml:"extension,omitempty"`
	Value      string `xml:"value,omitempty"`
	Updated    string `xml:"updated,omitempty"`
}

// Plugin describes a maven plugin of a plugin group.
type Plugin struct {
	Name       string `xml:"name,omitempty"`
	Prefix     string `xml:"prefix,omitempty"`
	ArtifactID string `xml:"artifactId,omitempty"`
}

// The list types below encode as a wrapper element which is left out entirely
// when the list is empty.

// Versions is the version list of an artifact.
type Versions []string

// MarshalXML implements xml.Marshaler.
func (v Versions) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(struct {
		Version []string `xml:"version"`
	}{v}, start)
}

// UnmarshalXML implements xml.Unmarshaler.
func (v *Versions) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var list struct {
		Version []string `xml:"version"`
	}
	if err := d.DecodeElement(&list, &start); err != nil {
		return err
	}
	*v = append(*v, list.Version...)
	return nil
}

// SnapshotVersions lists the latest builds of a snapshot version.
type SnapshotVersions []SnapshotVersion

// MarshalXML implements xml.Marshaler.
func (sv SnapshotVersions) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(struct {
		SnapshotVersion []SnapshotVersion `xml:"snapshotVersion"`
	}{sv}, start)
}

// UnmarshalXML implements xml.Unmarshaler.
func (sv *SnapshotVersions) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var list struct {
		SnapshotVersion []SnapshotVersion `xml:"snapshotVersion"`
	}
	if err := d.DecodeElement(&list, &start); err != nil {
		return err
	}
	*sv = append(*sv, list.SnapshotVersion...)
	return nil
}

// Plugins lists the plugins of a plugin group.
type Plugins []Plugin

// MarshalXML implements xml.Marshaler.
func (p Plugins) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(struct {
		Plugin []Plugin `xml:"plugin"`
	}{p}, start)
}

// UnmarshalXML implements xml.Unmarshaler.
func (p *Plugins) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var list struct {
		Plugin []Plugin `xml:"plugin"`
	}
	if err := d.DecodeElement(&list, &start); err != nil {
		return err
	}
	*p = append(*p, list.Plugin...)
	return nil
}

// ParseMetadata decodes a metadata document.
func ParseMetadata(doc string) (*Metadata, error) {
	md := new(Metadata)
	if err := xml.Unmarshal([]byte(doc), md); err != nil {
		return nil, fmt.Errorf("parsing maven metadata: %w", err)
	}
	return md, nil
}

// Encode renders md as an indented xml document.
func (md *Metadata) Encode() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(md); err != nil {
		return "", fmt.Errorf("encoding maven metadata: %w", err)
	}
	buf.WriteString("\n")

	return buf.String(), nil
}

// LastUpdated formats t as a metadata lastUpdated value.
func LastUpdated(t time.Time) string {
	return t.UTC().Format(lastUpdatedLayout)
}
