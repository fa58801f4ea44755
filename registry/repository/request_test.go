package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequest_IsNewerThanResource(t *testing.T) {
	base := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		req      Request
		modified time.Time
		want     bool
	}{
		{"no held copy", Request{}, base, false},
		{"unknown resource time", Request{IfModifiedSince: base}, time.Time{}, false},
		{"same second", Request{IfModifiedSince: base}, base.Add(900 * time.Millisecond), true},
		{"held newer", Request{IfModifiedSince: base.Add(time.Hour)}, base, true},
		{"held older", Request{IfModifiedSince: base}, base.Add(time.Second), false},
		{"last modified header", Request{LastModified: base}, base, true},
		{"if-modified-since wins", Request{IfModifiedSince: base, LastModified: base.Add(time.Hour)}, base.Add(time.Minute), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, test.req.IsNewerThanResource(test.modified))
		})
	}
}

func TestRequest_IsSnapshotOrMetadata(t *testing.T) {
	require.False(t, Request{Path: "org/acme/lib/1.0/lib-1.0.jar"}.IsSnapshotOrMetadata())
	require.True(t, Request{Path: "org/acme/lib/1.0-SNAPSHOT/lib-1.0-20210601.101500-1.jar"}.IsSnapshotOrMetadata())
	require.True(t, Request{Path: "org/acme/lib/maven-metadata.xml"}.IsSnapshotOrMetadata())
	require.True(t, Request{Path: "org/acme/lib/maven-metadata.xml.sha1"}.IsSnapshotOrMetadata())
}
