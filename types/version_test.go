package types

import (
	"strconv"
	"strings"
	"testing"
)

func TestVersion_IsSemver(t *testing.T) {
	core, pre, _ := strings.Cut(Version, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		t.Fatalf("Version %q: want major.minor.patch", Version)
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			t.Errorf("Version %q: component %q is not a number", Version, p)
		}
	}
	if strings.Contains(Version, "-") && pre == "" {
		t.Errorf("Version %q: empty pre-release", Version)
	}
}
