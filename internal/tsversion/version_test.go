package tsversion

import "testing"

func TestAtLeast(t *testing.T) {
	v, err := Parse("4.9.5")
	if err != nil {
		t.Fatal(err)
	}
	if !v.AtLeast(MinIPCTransport) {
		t.Error("4.9.5 should satisfy the 4.9.0 IPC gate")
	}
	older, err := Parse("4.8.0")
	if err != nil {
		t.Fatal(err)
	}
	if older.AtLeast(MinIPCTransport) {
		t.Error("4.8.0 should not satisfy the 4.9.0 IPC gate")
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("not-a-version"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParsePrerelease(t *testing.T) {
	v, err := Parse("5.4.0-dev.20240101")
	if err != nil {
		t.Fatalf("prerelease version should parse: %v", err)
	}
	if !v.AtLeast(MustParse("5.3.0")) {
		t.Error("5.4.0-dev should be considered >= 5.3.0")
	}
}
