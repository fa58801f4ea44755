package maven

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareVersionNames(t *testing.T) {
	tt := []struct {
		a, b string
		want int
	}{
		{a: "1.0", b: "1.0", want: 0},
		{a: "1.9", b: "1.10", want: -1},
		{a: "1.0", b: "1.0.1", want: -1},
		{a: "1.0-beta", b: "1.0", want: -1},
		{a: "1.0-SNAPSHOT", b: "1.0", want: -1},
		{a: "1.0", b: "1.0-SNAPSHOT", want: 1},
		{a: "1.0-alpha", b: "1.0-beta", want: -1},
		{a: "2.0", b: "1.99", want: 1},
		{a: "1.0.1", b: "1.0-beta", want: 1},
	}

	for _, test := range tt {
		t.Run(test.a+" vs "+test.b, func(t *testing.T) {
			require.Equal(t, test.want, sign(CompareVersionNames(test.a, test.b)))
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestComparators_Lookup(t *testing.T) {
	c := NewComparators()

	cmp, ok := c.Lookup(SemverComparator)
	require.True(t, ok)
	require.Equal(t, -1, sign(cmp.Compare("1.2.0", "1.10.0")))

	lexical, ok := c.Lookup(LexicalComparator)
	require.True(t, ok)
	require.Equal(t, 1, sign(lexical.Compare("1.2.0", "1.10.0")))

	fallback, ok := c.Lookup("unknown")
	require.False(t, ok)
	require.Equal(t, -1, sign(fallback.Compare("1.9", "1.10")))

	c.Register("reverse", VersionComparatorFunc(func(a, b string) int { return CompareVersionNames(b, a) }))
	reverse, ok := c.Lookup("reverse")
	require.True(t, ok)
	require.Equal(t, 1, sign(reverse.Compare("1.9", "1.10")))
}

func TestSortVersions(t *testing.T) {
	versions := []string{"1.10", "1.0-SNAPSHOT", "1.9", "1.0"}
	SortVersions(versions, VersionComparatorFunc(CompareVersionNames))
	require.Equal(t, []string{"1.0-SNAPSHOT", "1.0", "1.9", "1.10"}, versions)
}
