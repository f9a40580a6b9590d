package types

import "testing"

func TestParseResinCode(t *testing.T) {
	tests := []struct {
		in   string
		want ResinCode
		ok   bool
	}{
		{"PETE", PETE, true},
		{" hdpe ", HDPE, true},
		{"pvc", PVC, true},
		{"glass", "GLASS", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseResinCode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseResinCode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPlasticCatalog(t *testing.T) {
	catalog := PlasticCatalog()
	if len(catalog) != len(ResinCodes()) {
		t.Fatalf("Expected %d catalog entries, got %d", len(ResinCodes()), len(catalog))
	}

	for i, code := range ResinCodes() {
		if catalog[i].Code != code {
			t.Errorf("Entry %d: expected %s, got %s", i, code, catalog[i].Code)
		}
		if catalog[i].Name == "" {
			t.Errorf("Entry %s has no name", code)
		}
	}
}

func TestLookupPlasticAdvice(t *testing.T) {
	info, ok := LookupPlastic("ps")
	if !ok {
		t.Fatal("Expected PS to be known")
	}
	if info.Recyclable {
		t.Error("Expected PS to be non-recyclable")
	}
	if got := info.Advice(); got != "PS is difficult to recycle. Check local facilities." {
		t.Errorf("Unexpected advice: %q", got)
	}

	info, _ = LookupPlastic("PETE")
	if got := info.Advice(); got != "PETE is widely recyclable. Rinse before recycling." {
		t.Errorf("Unexpected advice: %q", got)
	}

	if _, ok := LookupPlastic("aluminium"); ok {
		t.Error("Expected unknown label to be rejected")
	}
}
