package maven

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/hashicorp/go-version"
)

// VersionComparator orders version names. Compare returns a negative number
// when a sorts before b, zero when they are equivalent and a positive number
// otherwise.
type VersionComparator interface {
	Compare(a, b string) int
}

// VersionComparatorFunc adapts a function to VersionComparator.
type VersionComparatorFunc func(a, b string) int

// Compare implements VersionComparator.
func (f VersionComparatorFunc) Compare(a, b string) int { return f(a, b) }

// Names of the built in comparators.
const (
	DefaultComparator = "default"
	LexicalComparator = "lexical"
	SemverComparator  = "semver"
)

// Comparators is a registry of version comparators keyed by name.
type Comparators struct {
	mu          sync.RWMutex
	comparators map[string]VersionComparator
}

// NewComparators returns a registry holding the built in comparators.
func NewComparators() *Comparators {
	return &Comparators{
		comparators: map[string]VersionComparator{
			DefaultComparator: VersionComparatorFunc(CompareVersionNames),
			LexicalComparator: VersionComparatorFunc(strings.Compare),
			SemverComparator:  VersionComparatorFunc(compareSemver),
		},
	}
}

// Register adds or replaces the comparator registered under name.
func (c *Comparators) Register(name string, cmp VersionComparator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comparators[name] = cmp
}

// Lookup returns the comparator registered under name. Unknown names resolve
// to the default comparator and ok is false.
func (c *Comparators) Lookup(name string) (cmp VersionComparator, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cmp, ok := c.comparators[name]; ok {
		return cmp, true
	}
	return c.comparators[DefaultComparator], false
}

// SortVersions sorts versions in place, oldest first.
func SortVersions(versions []string, cmp VersionComparator) {
	sort.SliceStable(versions, func(i, j int) bool {
		return cmp.Compare(versions[i], versions[j]) < 0
	})
}

// CompareVersionNames compares version names segment by segment. Numeric
// runs compare by value and other runs compare case sensitively, so 1.10
// sorts after 1.9 and 1.0-beta before 1.0. A snapshot sorts before the
// release it precedes.
func CompareVersionNames(a, b string) int {
	if a == b {
		return 0
	}

	baseA, baseB := strings.TrimSuffix(a, SnapshotSuffix), strings.TrimSuffix(b, SnapshotSuffix)
	if baseA == baseB {
		if IsSnapshotVersion(a) {
			return -1
		}
		return 1
	}

	ta, tb := tokenize(baseA), tokenize(baseB)
	for i := 0; i < len(ta) && i < len(tb); i++ {
		if c := compareTokens(ta[i], tb[i]); c != 0 {
			return c
		}
	}

	// a longer version extends the shorter one: a numeric extension is a
	// later version, a qualifier such as beta an earlier one.
	switch {
	case len(ta) < len(tb):
		if tb[len(ta)].numeric {
			return -1
		}
		return 1
	case len(ta) > len(tb):
		if ta[len(tb)].numeric {
			return 1
		}
		return -1
	default:
		return strings.Compare(a, b)
	}
}

type token struct {
	text    string
	numeric bool
}

// tokenize splits a version into numeric and alphabetic runs. Separators
// are dropped.
func tokenize(v string) []token {
	var tokens []token
	var cur strings.Builder
	curNumeric := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, token{text: cur.String(), numeric: curNumeric})
			cur.Reset()
		}
	}

	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			if cur.Len() > 0 && !curNumeric {
				flush()
			}
			curNumeric = true
			cur.WriteRune(r)
		case unicode.IsLetter(r):
			if cur.Len() > 0 && curNumeric {
				flush()
			}
			curNumeric = false
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

func compareTokens(a, b token) int {
	switch {
	case a.numeric && b.numeric:
		na, errA := strconv.ParseUint(a.text, 10, 64)
		nb, errB := strconv.ParseUint(b.text, 10, 64)
		if errA == nil && errB == nil {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
		return strings.Compare(a.text, b.text)
	case a.numeric:
		// numbers sort after qualifiers: 1.0.1 > 1.0-beta
		return 1
	case b.numeric:
		return -1
	default:
		return strings.Compare(a.text, b.text)
	}
}

// compareSemver orders semantic versions, falling back to version name
// ordering when either side does not parse.
func compareSemver(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA != nil || errB != nil {
		return CompareVersionNames(a, b)
	}
	return va.Compare(vb)
}
