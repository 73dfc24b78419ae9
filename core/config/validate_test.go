package config

import (
	"strings"
	"testing"
)

func TestValidate_Valid(t *testing.T) {
	r, err := Validate([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsValid() {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_Empty(t *testing.T) {
	r, err := Validate(nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsValid() {
		t.Errorf("empty config should be valid: %v", r.Errors)
	}
}

func TestValidate_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: blue\n"},
		{"bad id", "id: Not Valid\n"},
		{"negative parallelism", "parallelism: -1\n"},
		{"bad locality", "runtime:\n  locality: chroot\n"},
		{"bad phase name", "args:\n  compile: [x]\n"},
		{"args not a list", "args:\n  build: -j1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Validate([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if r.IsValid() {
				t.Error("expected schema errors")
			}
		})
	}
}

func TestValidate_RuntimeCommandRequired(t *testing.T) {
	r, err := Validate([]byte("runtime:\n  locality: container\n"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.IsValid() {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(r.Errors[0], "runtime.command") {
		t.Errorf("error = %q", r.Errors[0])
	}
}

func TestValidateFile_Warnings(t *testing.T) {
	f := &File{
		Runtime:        RuntimeRef{Command: []string{"toolbox", "run"}},
		DisabledStages: []string{"make", "make"},
		BuildDir:       "src",
		SrcDir:         "src",
	}
	r := ValidateFile(f)
	if !r.IsValid() {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
	if len(r.Warnings) != 3 {
		t.Errorf("expected 3 warnings, got %d: %v", len(r.Warnings), r.Warnings)
	}
}

func TestValidate_MalformedYAML(t *testing.T) {
	if _, err := Validate([]byte("id: [unclosed")); err == nil {
		t.Error("expected error")
	}
}
