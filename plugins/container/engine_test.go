package container

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"docker", "podman", "buildah"} {
		e, ok := Lookup(name)
		if !ok || e.Name() != name {
			t.Errorf("Lookup(%q) = %q, %v", name, e.Name(), ok)
		}
	}
	if _, ok := Lookup("kaniko"); ok {
		t.Error("Lookup(kaniko) should fail")
	}
}

func TestEngine_BuildArgv(t *testing.T) {
	opts := BuildOptions{
		ContextDir: "/src",
		File:       "/src/Containerfile",
		Tag:        "example/app:dev",
		Platform:   "linux/amd64",
		NoCache:    true,
		BuildArgs:  map[string]string{"VERSION": "1.2", "GOFLAGS": "-mod=vendor"},
	}
	tests := []struct {
		engine string
		verb   string
	}{
		{"docker", "build"},
		{"podman", "build"},
		{"buildah", "bud"},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			e, _ := Lookup(tt.engine)
			want := []string{
				tt.engine, tt.verb,
				"-t", "example/app:dev",
				"-f", "/src/Containerfile",
				"--platform", "linux/amd64",
				"--no-cache",
				"--build-arg", "GOFLAGS=-mod=vendor",
				"--build-arg", "VERSION=1.2",
				"/src",
			}
			if got := e.BuildArgv(opts); !reflect.DeepEqual(got, want) {
				t.Errorf("BuildArgv = %v\nwant %v", got, want)
			}
		})
	}
}

func TestEngine_BuildArgvDefaults(t *testing.T) {
	e, _ := Lookup("docker")
	want := []string{"docker", "build", "."}
	if got := e.BuildArgv(BuildOptions{}); !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArgv = %v, want %v", got, want)
	}
}

func TestEngine_PushArgv(t *testing.T) {
	e, _ := Lookup("podman")
	e = e.WithProgram("/usr/local/bin/podman")
	want := []string{"/usr/local/bin/podman", "push", "example/app:dev"}
	if got := e.PushArgv("example/app:dev"); !reflect.DeepEqual(got, want) {
		t.Errorf("PushArgv = %v, want %v", got, want)
	}
}

func TestEngine_AvailableMissingProgram(t *testing.T) {
	e, _ := Lookup("docker")
	e = e.WithProgram(filepath.Join(t.TempDir(), "docker"))
	if e.Available(context.Background()) {
		t.Error("missing program reported as available")
	}
}

func TestParseImageID(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "docker style",
			output: "Step 1/5 : FROM alpine\nSuccessfully built abc123def",
			want:   "abc123def",
		},
		{
			name:   "sha256 hash",
			output: "Step 1/5 : FROM alpine\nsha256:abc123def456",
			want:   "sha256:abc123def456",
		},
		{
			name:   "last line fallback",
			output: "STEP 1/2: FROM alpine\nsome-image-id\n",
			want:   "some-image-id",
		},
		{
			name:   "empty output",
			output: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseImageID(tt.output); got != tt.want {
				t.Errorf("ParseImageID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBuildArgs(t *testing.T) {
	got := parseBuildArgs("A=1, B=x=y,broken,=skip")
	want := map[string]string{"A": "1", "B": "x=y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseBuildArgs = %v, want %v", got, want)
	}
	if parseBuildArgs("") != nil {
		t.Error("empty input should give nil")
	}
}
