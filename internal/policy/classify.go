package policy

import "strings"

// CategorySet is one named membership set for domain classification.
type CategorySet struct {
	Name    string
	Domains map[string]struct{}
}

// MixedCategory is returned when no configured set matches.
const MixedCategory = "mixed"

// TopTierCategory names the global-provider bucket that earns the
// top-tier score weight.
const TopTierCategory = "global_providers"

// DefaultCategorySets is the declared classification order. First match
// wins, so the slice order is itself policy.
var DefaultCategorySets = []CategorySet{
	{
		Name: TopTierCategory,
		Domains: set(
			"gmail.com", "yahoo.com", "hotmail.com", "outlook.com",
			"aol.com", "icloud.com", "protonmail.com", "mail.com",
			"zoho.com", "gmx.com",
		),
	},
	{
		Name: "regional_isp",
		Domains: set(
			"comcast.net", "verizon.net", "att.net", "cox.net",
			"charter.net", "earthlink.net", "sbcglobal.net",
			"bellsouth.net", "frontier.com", "centurylink.net",
		),
	},
}

func set(domains ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		m[d] = struct{}{}
	}
	return m
}

// ClassifyDomain returns the name of the first set containing the domain,
// or MixedCategory when none do.
func ClassifyDomain(domain string, sets []CategorySet) string {
	domain = strings.ToLower(domain)
	for _, s := range sets {
		if _, ok := s.Domains[domain]; ok {
			return s.Name
		}
	}
	return MixedCategory
}
