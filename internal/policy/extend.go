package policy

import "strings"

// Extensions carry deployment-specific additions to the built-in policy
// tables. All entries are lowercased on merge. BlockedSuffixes and
// TypoTLDs are bare top-level labels ("mil", "ocm"); a leading dot is
// stripped.
type Extensions struct {
	BlockedSuffixes   []string
	TypoTLDs          []string
	RoleLocals        []string
	FakeLocals        []string
	DisposableDomains []string
}

// Extend merges the extensions into the package tables. Call once at
// startup, before the first admission or validation run; the tables are
// not safe for mutation after that.
func Extend(ex Extensions) {
	merge(blockedSuffixes, stripDots(ex.BlockedSuffixes))
	merge(typoTLDs, stripDots(ex.TypoTLDs))
	merge(roleLocals, ex.RoleLocals)
	merge(fakeLocals, ex.FakeLocals)
	merge(disposableDomains, ex.DisposableDomains)
}

// NewCategorySet builds a classification set from a configured name and
// domain list.
func NewCategorySet(name string, domains []string) CategorySet {
	m := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		m[strings.ToLower(d)] = struct{}{}
	}
	return CategorySet{Name: name, Domains: m}
}

func stripDots(entries []string) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = strings.TrimPrefix(strings.TrimSpace(e), ".")
	}
	return out
}

func merge(dst map[string]struct{}, entries []string) {
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			dst[e] = struct{}{}
		}
	}
}
