package catalog

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationYAML(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"2m30s"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Std() != 2*time.Minute+30*time.Second {
		t.Fatalf("expected 2m30s, got %s", d)
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "2m30s\n" {
		t.Fatalf("expected 2m30s, got %q", out)
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := yaml.Unmarshal([]byte(`"-10s"`), &d); err == nil {
		t.Fatalf("expected negative duration error")
	}
}
