package buildinfo

import "testing"

func TestString_ReturnsNonEmptyWithNoLinkedVersion(t *testing.T) {
	// In the test binary Version is still its initial default ("dev"),
	// and debug.ReadBuildInfo's vcs.revision setting is only populated for
	// binaries built directly from a VCS checkout, so this just asserts
	// String never panics and returns a non-empty string.
	if got := String(); got == "" {
		t.Fatalf("String() returned empty string")
	}
}
