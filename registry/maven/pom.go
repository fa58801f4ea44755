package maven

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Coordinates identify an artifact.
type Coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
}

type pomDocument struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Parent     struct {
		GroupID string `xml:"groupId"`
		Version string `xml:"version"`
	} `xml:"parent"`
}

// ReadPomCoordinates reads the coordinates declared by a project descriptor.
// Group and version are inherited from the parent when absent.
func ReadPomCoordinates(r io.Reader) (Coordinates, error) {
	var pom pomDocument
	if err := xml.NewDecoder(r).Decode(&pom); err != nil {
		return Coordinates{}, fmt.Errorf("parsing pom: %w", err)
	}

	c := Coordinates{GroupID: pom.GroupID, ArtifactID: pom.ArtifactID, Version: pom.Version}
	if c.GroupID == "" {
		c.GroupID = pom.Parent.GroupID
	}
	if c.Version == "" {
		c.Version = pom.Parent.Version
	}
	if c.GroupID == "" || c.ArtifactID == "" {
		return Coordinates{}, fmt.Errorf("pom declares no group or artifact id")
	}

	return c, nil
}

// CoordinatesFromPath derives coordinates from the layout of an artifact
// folder such as org/acme/lib.
func CoordinatesFromPath(artifactFolder string) Coordinates {
	artifactFolder = strings.Trim(artifactFolder, "/")
	i := strings.LastIndex(artifactFolder, "/")
	if i < 0 {
		return Coordinates{ArtifactID: artifactFolder}
	}
	return Coordinates{
		GroupID:    strings.ReplaceAll(artifactFolder[:i], "/", "."),
		ArtifactID: artifactFolder[i+1:],
	}
}
