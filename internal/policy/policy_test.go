package policy

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  User@Example.COM ", "user@example.com", false},
		{"user@example.com", "user@example.com", false},
		{"no-at-sign", "", true},
		{"@example.com", "", true},
		{"user@", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Normalize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSyntaxValid(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.org",
		"user+tag@example.co",
	}
	for _, a := range valid {
		if !SyntaxValid(a) {
			t.Errorf("SyntaxValid(%q) = false, want true", a)
		}
	}
	invalid := []string{
		"user@example",
		"user@@example.com",
		"user example@example.com",
		"user@example.c",
		"user@example.123",
	}
	for _, a := range invalid {
		if SyntaxValid(a) {
			t.Errorf("SyntaxValid(%q) = true, want false", a)
		}
	}
}

func TestTLDAdmissible(t *testing.T) {
	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"example.us", true},
		{"state.co.us", true},
		{"example.uk", false},
		{"example.co.uk", false},
		{"example.com.au", false},
		{"example.de", false},
		{"mail.example.org", true},
	}
	for _, tt := range tests {
		if got := TLDAdmissible(tt.domain, USPublicSuffixes); got != tt.want {
			t.Errorf("TLDAdmissible(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestPolicySuffixBlocked(t *testing.T) {
	if !PolicySuffixBlocked("example.gov") {
		t.Error("expected example.gov to be blocked")
	}
	if !PolicySuffixBlocked("example.edu") {
		t.Error("expected example.edu to be blocked")
	}
	if PolicySuffixBlocked("example.com") {
		t.Error("did not expect example.com to be blocked")
	}
}

func TestIsRoleAddress(t *testing.T) {
	for _, local := range []string{"admin", "INFO", "Mailer-Daemon", "noreply"} {
		if !IsRoleAddress(local) {
			t.Errorf("IsRoleAddress(%q) = false, want true", local)
		}
	}
	if IsRoleAddress("jane.doe") {
		t.Error("IsRoleAddress(jane.doe) = true, want false")
	}
}

func TestIsFakeLocal(t *testing.T) {
	for _, local := range []string{"test", "Demo", "noemail", "qwerty"} {
		if !IsFakeLocal(local) {
			t.Errorf("IsFakeLocal(%q) = false, want true", local)
		}
	}
	// Long repetitive strings trip the entropy floor.
	if !IsFakeLocal("aaaaaaaaaa") {
		t.Error("IsFakeLocal(aaaaaaaaaa) = false, want true")
	}
	if !IsFakeLocal("ababababab") {
		t.Error("IsFakeLocal(ababababab) = false, want true")
	}
	// Real names are fine, short or long.
	for _, local := range []string{"jane.doe", "bob", "christopher.walken1984"} {
		if IsFakeLocal(local) {
			t.Errorf("IsFakeLocal(%q) = true, want false", local)
		}
	}
}

func TestHasTypoTLD(t *testing.T) {
	for _, d := range []string{"example.con", "example.cmo", "example.nte"} {
		if !HasTypoTLD(d) {
			t.Errorf("HasTypoTLD(%q) = false, want true", d)
		}
	}
	if HasTypoTLD("example.com") {
		t.Error("HasTypoTLD(example.com) = true, want false")
	}
}

func TestIsDisposable(t *testing.T) {
	for _, d := range []string{"mailinator.com", "yopmail.com", "mytempmailbox.com", "trashbin.org"} {
		if !IsDisposable(d) {
			t.Errorf("IsDisposable(%q) = false, want true", d)
		}
	}
	if IsDisposable("gmail.com") {
		t.Error("IsDisposable(gmail.com) = true, want false")
	}
}

func TestClassifyDomain(t *testing.T) {
	if got := ClassifyDomain("GMAIL.com", DefaultCategorySets); got != TopTierCategory {
		t.Errorf("ClassifyDomain(gmail.com) = %q, want %q", got, TopTierCategory)
	}
	if got := ClassifyDomain("comcast.net", DefaultCategorySets); got != "regional_isp" {
		t.Errorf("ClassifyDomain(comcast.net) = %q, want regional_isp", got)
	}
	if got := ClassifyDomain("example.com", DefaultCategorySets); got != MixedCategory {
		t.Errorf("ClassifyDomain(example.com) = %q, want %q", got, MixedCategory)
	}
}

func TestClassifyDomainOrderWins(t *testing.T) {
	sets := []CategorySet{
		{Name: "first", Domains: set("both.com")},
		{Name: "second", Domains: set("both.com")},
	}
	if got := ClassifyDomain("both.com", sets); got != "first" {
		t.Errorf("ClassifyDomain order = %q, want first", got)
	}
}

func TestExtend(t *testing.T) {
	Extend(Extensions{
		BlockedSuffixes:   []string{".MIL"},
		TypoTLDs:          []string{" ocm "},
		DisposableDomains: []string{"Burner.example"},
	})

	if !PolicySuffixBlocked("base.example.mil") {
		t.Error("extended suffix not blocked")
	}
	if !HasTypoTLD("example.ocm") {
		t.Error("extended typo TLD not recognized")
	}
	if !IsDisposable("burner.example") {
		t.Error("extended disposable domain not recognized")
	}
	// Built-ins survive the merge.
	if !PolicySuffixBlocked("example.gov") {
		t.Error("built-in suffix lost after extend")
	}
}

func TestNewCategorySet(t *testing.T) {
	sets := []CategorySet{NewCategorySet("partners", []string{"Partner.COM"})}
	if got := ClassifyDomain("partner.com", sets); got != "partners" {
		t.Errorf("ClassifyDomain = %q, want partners", got)
	}
}

func TestRubricScore(t *testing.T) {
	r := DefaultRubric

	perfect := Signals{SyntaxValid: true, MXPresent: true, Category: TopTierCategory}
	if got := r.Score(perfect); got != 100 {
		t.Errorf("perfect score = %d, want 100", got)
	}

	mixed := Signals{SyntaxValid: true, MXPresent: true, Category: MixedCategory}
	if got := r.Score(mixed); got != 85 {
		t.Errorf("mixed-category score = %d, want 85", got)
	}

	role := Signals{SyntaxValid: true, MXPresent: true, Role: true, Category: MixedCategory}
	if got := r.Score(role); got != 75 {
		t.Errorf("role score = %d, want 75", got)
	}

	worst := Signals{Role: true, Disposable: true}
	if got := r.Score(worst); got != 0 {
		t.Errorf("worst score = %d, want 0", got)
	}
}
