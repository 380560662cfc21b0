package version_test

import (
	"testing"

	"github.com/arkforge/arkforge/pkg/types"
	"github.com/arkforge/arkforge/pkg/version"
)

func TestSatisfies(t *testing.T) {
	tests := []struct {
		provided string
		required string
		want     bool
	}{
		{"1.2.0", "1.2.0", true},
		{"1.3.0", "1.2.0", true},
		{"2.0.0", "1.2.0", true},
		{"1.1.9", "1.2.0", false},
		{"1.2.0", "1.2.0+", true},
		{"1.2.1", "1.2.0+", true},
		{"1.1.0", "1.2.0+", false},
		{"1.0.0", "1.0.0-beta", true},
		{"0.9.0", "", false},       // malformed requirement fails closed
		{"garbage", "1.0.0", false}, // malformed provided fails closed
		{"1.0", "1.0.0", false},
	}

	for _, tt := range tests {
		if got := version.Satisfies(tt.provided, tt.required); got != tt.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.provided, tt.required, got, tt.want)
		}
	}
}

func TestParseStripsOrHigherMarker(t *testing.T) {
	v, err := version.Parse("2.1.3+")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v.Major() != 2 || v.Minor() != 1 || v.Patch() != 3 {
		t.Errorf("got %d.%d.%d, want 2.1.3", v.Major(), v.Minor(), v.Patch())
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "abc", "1.x.0", "1..0"} {
		if _, err := version.Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestValidateCompatible(t *testing.T) {
	v := version.NewValidator(false)
	d := types.PluginDescriptor{
		ID:                  "fmt",
		RequiredCoreVersion: "1.0.0",
		RequiredSDKVersion:  "1.0.0",
	}

	ok, reason := v.Validate(d, "1.2.0", "1.0.0")
	if !ok {
		t.Errorf("expected compatible, got: %s", reason)
	}
}

func TestValidateIncompatibleCore(t *testing.T) {
	v := version.NewValidator(false)
	d := types.PluginDescriptor{ID: "fmt", RequiredCoreVersion: "2.0.0"}

	ok, reason := v.Validate(d, "1.9.9", "1.0.0")
	if ok {
		t.Error("expected incompatible")
	}
	if reason == "" {
		t.Error("expected a human-readable reason")
	}
}

func TestValidateStrictRejectsMissingRequirements(t *testing.T) {
	strict := version.NewValidator(true)
	lenient := version.NewValidator(false)
	d := types.PluginDescriptor{ID: "fmt"}

	if ok, _ := strict.Validate(d, "1.0.0", "1.0.0"); ok {
		t.Error("strict mode should reject missing requirement fields")
	}
	if ok, _ := lenient.Validate(d, "1.0.0", "1.0.0"); !ok {
		t.Error("lenient mode should accept missing requirement fields")
	}
}

func TestValidateMalformedRequirementFailsClosed(t *testing.T) {
	v := version.NewValidator(false)
	d := types.PluginDescriptor{ID: "fmt", RequiredCoreVersion: "not-a-version"}

	if ok, _ := v.Validate(d, "1.0.0", "1.0.0"); ok {
		t.Error("malformed requirement must be treated as incompatible")
	}
}
