package policy

import (
	"errors"
	"math"
	"regexp"
	"strings"
)

// ErrMalformedAddress is returned when an input cannot be parsed into a
// local part and a domain.
var ErrMalformedAddress = errors.New("malformed email address")

// Conservative grammar: local-part chars, single @, dotted domain with an
// alphabetic final label of at least two characters.
var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Institutional suffixes blocked outright. Checked independently of the
// ccTLD rule and takes precedence when both would fire.
var blockedSuffixes = map[string]struct{}{
	"gov": {},
	"edu": {},
}

/// homeCountryTLD is the single ccTLD carve-out: every other two-letter
// country code is rejected.
const homeCountryTLD = "us"

// Near-miss misspellings of com/net seen in real upload traffic.
var typoTLDs = map[string]struct{}{
	"con": {}, "cmo": {}, "ocm": {}, "vom": {}, "xom": {},
	"nte": {}, "ent": {}, "nrt": {}, "met": {},
}

// Generic mailbox names that never represent an individual recipient.
var roleLocals = map[string]struct{}{
	"admin": {}, "administrator": {}, "info": {}, "support": {},
	"sales": {}, "contact": {}, "postmaster": {}, "abuse": {},
	"webmaster": {}, "help": {}, "noreply": {}, "no-reply": {},
	"mailer-daemon": {},
}

// Placeholder local parts that indicate a synthetic or test address.
var fakeLocals = map[string]struct{}{
	"test": {}, "testing": {}, "demo": {}, "none": {}, "na": {},
	"unknown": {}, "noemail": {}, "nomail": {}, "asdf": {},
	"qwerty": {}, "abc": {}, "xyz": {}, "sample": {}, "example": {},
	"null": {},
}

// Known temporary-mail providers.
var disposableDomains = map[string]struct{}{
	"mailinator.com": {}, "guerrillamail.com": {}, "10minutemail.com": {},
	"yopmail.com": {}, "trashmail.com": {}, "tempmail.com": {},
	"getnada.com": {}, "sharklasers.com": {}, "maildrop.cc": {},
	"dispostable.com": {},
}

// Substrings strongly associated with disposable services.
var disposableHints = []string{"temp", "trash", "fake", "throwaway", "guerrilla", "disposable", "spam"}

// MinLocalEntropy is the Shannon entropy floor (bits per character) below
// which a long local part is treated as synthetic. Short locals are exempt
// because legitimate ones are naturally low-entropy.
const (
	MinLocalEntropy  = 1.5
	entropyMinLength = 8
)

// SyntaxValid reports whether the address matches the conservative grammar.
func SyntaxValid(address string) bool {
	return addressPattern.MatchString(address)
}

// Normalize lowercases and trims an address. It fails when the result has
// no @ separator or an empty local or domain part.
func Normalize(address string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", ErrMalformedAddress
	}
	return addr, nil
}

// ExtractDomain returns the substring after the last @.
func ExtractDomain(address string) (string, error) {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return "", ErrMalformedAddress
	}
	return strings.ToLower(address[at+1:]), nil
}

// ExtractLocal returns the substring before the last @.
func ExtractLocal(address string) (string, error) {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return "", ErrMalformedAddress
	}
	return strings.ToLower(address[:at]), nil
}

// USPublicSuffixes lists multi-label suffixes under the home ccTLD that
// registrants sit beneath (state and local government second levels).
// Injected into TLDAdmissible so the table can grow without touching the
// predicate.
var USPublicSuffixes = func() map[string]struct{} {
	states := []string{
		"al", "ak", "az", "ar", "ca", "co", "ct", "de", "fl", "ga",
		"hi", "id", "il", "in", "ia", "ks", "ky", "la", "me", "md",
		"ma", "mi", "mn", "ms", "mo", "mt", "ne", "nv", "nh", "nj",
		"nm", "ny", "nc", "nd", "oh", "ok", "or", "pa", "ri", "sc",
		"sd", "tn", "tx", "ut", "vt", "va", "wa", "wv", "wi", "wy", "dc",
	}
	m := make(map[string]struct{}, len(states))
	for _, s := range states {
		m[s+".us"] = struct{}{}
	}
	return m
}()

// TLDAdmissible implements the strict allow-by-exception ccTLD policy:
// generic TLDs pass, the home country code passes (including registered
// second levels under it), every other country code is rejected.
func TLDAdmissible(domain string, usSuffixes map[string]struct{}) bool {
	domain = strings.ToLower(domain)
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	tld := labels[len(labels)-1]
	if len(tld) != 2 {
		// Generic TLD. Anything longer than two characters is not a
		// country code.
		return true
	}
	if tld != homeCountryTLD {
		return false
	}
	if len(labels) == 2 {
		return true
	}
	// Deeper home-country domains must sit under a registered public
	// second level (state.co.us and friends).
	suffix := strings.Join(labels[len(labels)-2:], ".")
	_, ok := usSuffixes[suffix]
	return ok
}

// PolicySuffixBlocked reports whether the domain's TLD is on the fixed
// institutional blocklist.
func PolicySuffixBlocked(domain string) bool {
	domain = strings.ToLower(domain)
	i := strings.LastIndex(domain, ".")
	if i < 0 {
		return false
	}
	_, ok := blockedSuffixes[domain[i+1:]]
	return ok
}

// IsRoleAddress reports whether the local part is a generic mailbox name.
func IsRoleAddress(localPart string) bool {
	_, ok := roleLocals[strings.ToLower(localPart)]
	return ok
}

// IsFakeLocal reports whether the local part is a known placeholder token
// or, for longer locals, too low-entropy to be a plausible mailbox name.
func IsFakeLocal(localPart string) bool {
	local := strings.ToLower(localPart)
	if _, ok := fakeLocals[local]; ok {
		return true
	}
	if len(local) >= entropyMinLength && shannonEntropy(local) < MinLocalEntropy {
		return true
	}
	return false
}

// HasTypoTLD reports whether the domain ends in a near-miss misspelling
// of a common generic TLD.
func HasTypoTLD(domain string) bool {
	domain = strings.ToLower(domain)
	i := strings.LastIndex(domain, ".")
	if i < 0 {
		return false
	}
	_, ok := typoTLDs[domain[i+1:]]
	return ok
}

// IsDisposable reports whether the domain is a known temporary-mail
// provider or carries a disposable-service substring.
func IsDisposable(domain string) bool {
	domain = strings.ToLower(domain)
	if _, ok := disposableDomains[domain]; ok {
		return true
	}
	host := domain
	if i := strings.LastIndex(host, "."); i > 0 {
		host = host[:i]
	}
	for _, hint := range disposableHints {
		if strings.Contains(host, hint) {
			return true
		}
	}
	return false
}

// shannonEntropy returns the character-level entropy in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	var h float64
	for _, n := range freq {
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
