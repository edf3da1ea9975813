package normalize

import "testing"

func TestNameKeyFoldsDiacriticsAndCase(t *testing.T) {
	cases := []struct {
		parts []string
		want  string
	}{
		{[]string{"Renée", "O'Brien"}, "renee o brien"},
		{[]string{"  PAT ", "Doyle-Smith"}, "pat doyle smith"},
		{[]string{"José", "García"}, "jose garcia"},
		{[]string{""}, ""},
		{[]string{"St. Mary's Fund"}, "st mary s fund"},
	}
	for _, tc := range cases {
		if got := NameKey(tc.parts...); got != tc.want {
			t.Errorf("NameKey(%v) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}

func TestPhoneKeyStripsFormattingAndCountryCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+1 (555) 010-2000", "5550102000"},
		{"555.010.2000", "5550102000"},
		{"15550102000", "5550102000"},
		{"ext 123", ""},
		{"", ""},
		{"911", ""},
	}
	for _, tc := range cases {
		if got := PhoneKey(tc.in); got != tc.want {
			t.Errorf("PhoneKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmailKeyStripsPlusTags(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Pat+news@Example.com", "pat@example.com"},
		{"pat@example.com", "pat@example.com"},
		{" PAT@EXAMPLE.COM ", "pat@example.com"},
		{"not-an-email", ""},
		{"@example.com", ""},
		{"pat@", ""},
	}
	for _, tc := range cases {
		if got := EmailKey(tc.in); got != tc.want {
			t.Errorf("EmailKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmailDomainAndLocalPart(t *testing.T) {
	if got := EmailDomain("Pat+news@Example.com"); got != "example.com" {
		t.Errorf("EmailDomain = %q", got)
	}
	if got := EmailLocalPart("Pat+news@Example.com"); got != "pat" {
		t.Errorf("EmailLocalPart = %q", got)
	}
	if got := EmailDomain("garbage"); got != "" {
		t.Errorf("EmailDomain(garbage) = %q, want empty", got)
	}
}

func TestAddressKey(t *testing.T) {
	a := AddressKey("123 Main St.", "Springfield", "01101")
	b := AddressKey("123 MAIN ST", "springfield", "01101")
	if a != b {
		t.Errorf("equivalent addresses produced different keys: %q vs %q", a, b)
	}
	if AddressKey("", "", "") != "" {
		t.Error("empty address should produce no key")
	}
	if AddressKey("123 Main St", "", "") == AddressKey("", "123 Main St", "") {
		t.Error("line and city must not be interchangeable")
	}
}

func TestLooksLikeOrganization(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Acme Holdings LLC", true},
		{"St. Mary's Foundation", true},
		{"Pat Doyle", false},
		{"Miller Collins", false},
		{"First Community Church", true},
	}
	for _, tc := range cases {
		if got := LooksLikeOrganization(tc.name); got != tc.want {
			t.Errorf("LooksLikeOrganization(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
