package maven

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const versionsDocument = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>org.acme</groupId>
  <artifactId>lib</artifactId>
  <version>1.2</version>
  <versioning>
    <latest>1.2</latest>
    <release>1.2</release>
    <versions>
      <version>1.0</version>
      <version>1.1</version>
      <version>1.2</version>
    </versions>
    <lastUpdated>20210601101500</lastUpdated>
  </versioning>
</metadata>
`

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata(versionsDocument)
	require.NoError(t, err)

	require.Equal(t, "org.acme", md.GroupID)
	require.Equal(t, "lib", md.ArtifactID)
	require.Equal(t, Versions{"1.0", "1.1", "1.2"}, md.Versioning.Versions)
	require.Equal(t, "1.2", md.Versioning.Latest)
	require.Nil(t, md.Versioning.Snapshot)
	require.Empty(t, md.Plugins)
}

func TestParseMetadata_SnapshotAndPlugins(t *testing.T) {
	doc := `<metadata>
  <versioning>
    <snapshot><timestamp>20210601.101500</timestamp><buildNumber>3</buildNumber></snapshot>
  </versioning>
  <plugins>
    <plugin><name>Compiler</name><prefix>compiler</prefix><artifactId>maven-compiler-plugin</artifactId></plugin>
  </plugins>
</metadata>`

	md, err := ParseMetadata(doc)
	require.NoError(t, err)
	require.Equal(t, &Snapshot{Timestamp: "20210601.101500", BuildNumber: 3}, md.Versioning.Snapshot)
	require.Equal(t, Plugins{{Name: "Compiler", Prefix: "compiler", ArtifactID: "maven-compiler-plugin"}}, md.Plugins)
}

func TestParseMetadata_Invalid(t *testing.T) {
	_, err := ParseMetadata("<metadata>")
	require.Error(t, err)
}

func TestMetadata_EncodeKeepsContent(t *testing.T) {
	md, err := ParseMetadata(versionsDocument)
	require.NoError(t, err)

	doc, err := md.Encode()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc, "<?xml"))
	require.Contains(t, doc, "<version>1.1</version>")
	require.NotContains(t, doc, "<plugins>")

	again, err := ParseMetadata(doc)
	require.NoError(t, err)
	require.Equal(t, md.Versioning, again.Versioning)
}

func TestMetadata_EncodeOmitsEmptyLists(t *testing.T) {
	tests := []struct {
		name    string
		md      *Metadata
		want    []string
		missing []string
	}{
		{
			name: "snapshot version",
			md: &Metadata{
				Version: "1.0-SNAPSHOT",
				Versioning: &Versioning{
					Snapshot:    &Snapshot{Timestamp: "20210601.101500", BuildNumber: 3},
					LastUpdated: "20210601101500",
				},
			},
			want:    []string{"<buildNumber>3</buildNumber>"},
			missing: []string{"<versions>", "<snapshotVersions>", "<plugins>"},
		},
		{
			name: "plugin group",
			md: &Metadata{Plugins: Plugins{
				{Name: "Compiler", Prefix: "compiler", ArtifactID: "maven-compiler-plugin"},
			}},
			want:    []string{"<plugins>", "<prefix>compiler</prefix>"},
			missing: []string{"<versioning>", "<versions>"},
		},
		{
			name: "snapshot builds",
			md: &Metadata{Versioning: &Versioning{SnapshotVersions: SnapshotVersions{
				{Extension: "jar", Value: "1.0-20210601.101500-3", Updated: "20210601101500"},
			}}},
			want:    []string{"<snapshotVersions>", "<snapshotVersion>", "<extension>jar</extension>"},
			missing: []string{"<versions>", "<plugins>"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			doc, err := test.md.Encode()
			require.NoError(t, err)
			for _, s := range test.want {
				require.Contains(t, doc, s)
			}
			for _, s := range test.missing {
				require.NotContains(t, doc, s)
			}

			again, err := ParseMetadata(doc)
			require.NoError(t, err)
			require.Equal(t, test.md.Versioning, again.Versioning)
			require.Equal(t, test.md.Plugins, again.Plugins)
		})
	}
}

func TestLastUpdated(t *testing.T) {
	require.Equal(t, "20210601101500", LastUpdated(time.Date(2021, 6, 1, 10, 15, 0, 0, time.UTC)))
}
