package build_test

import (
	"slices"
	"testing"

	"nativebuild/internal/build"
)

func boolPtr(v bool) *bool { return &v }

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		opts build.Options
		want build.Plan
	}{
		{
			name: "defaults",
			opts: build.Options{},
			want: build.Plan{Build: true, Host: true, Device: true, CPP: true, PrepareBinaries: true, Areas: []string{"all"}},
		},
		{
			name: "clean turns build off",
			opts: build.Options{Clean: true},
			want: build.Plan{Clean: true, Host: true, Device: true, CPP: true, PrepareBinaries: true, Areas: []string{"all"}},
		},
		{
			name: "clean with explicit build",
			opts: build.Options{Clean: true, Build: boolPtr(true)},
			want: build.Plan{Clean: true, Build: true, Host: true, Device: true, CPP: true, PrepareBinaries: true, Areas: []string{"all"}},
		},
		{
			name: "rebuild implies clean and build",
			opts: build.Options{Rebuild: true, Build: boolPtr(false)},
			want: build.Plan{Clean: true, Build: true, Host: true, Device: true, CPP: true, PrepareBinaries: true, Areas: []string{"all"}},
		},
		{
			name: "release defaults to release area",
			opts: build.Options{ReleaseBuild: true, Host: boolPtr(false), PrepareBinaries: boolPtr(false)},
			want: build.Plan{Build: true, Release: true, Device: true, CPP: true, Areas: []string{"release"}},
		},
		{
			name: "spec override and verbose driver output",
			opts: build.Options{SpecOverride: "release", Verbose: 2, Extra: []string{"-t", "debug", "MLSDK=/sdk"}, Areas: []string{"'tools, apps'"}},
			want: build.Plan{Build: true, Host: true, Device: true, CPP: true, PrepareBinaries: true, Areas: []string{"tools", "apps"}, Target: "release", Verbose: 2, Extra: []string{"MLSDK=/sdk", "-v"}},
		},
		{
			name: "target from pass-through args",
			opts: build.Options{Extra: []string{"-t", "debug", "-t", "release_host"}, CCache: " ccache "},
			want: build.Plan{Build: true, Host: true, Device: true, CPP: true, PrepareBinaries: true, Areas: []string{"all"}, Target: "release_host", CCache: "ccache"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := build.Canonicalize(tt.opts)
			if got.Clean != tt.want.Clean || got.Build != tt.want.Build || got.Release != tt.want.Release ||
				got.Host != tt.want.Host || got.Device != tt.want.Device || got.CPP != tt.want.CPP ||
				got.PrepareBinaries != tt.want.PrepareBinaries || got.Target != tt.want.Target ||
				got.CCache != tt.want.CCache || got.Verbose != tt.want.Verbose {
				t.Fatalf("Canonicalize = %+v, want %+v", got, tt.want)
			}
			if !slices.Equal(got.Areas, tt.want.Areas) {
				t.Fatalf("areas = %v, want %v", got.Areas, tt.want.Areas)
			}
			if !slices.Equal(got.Extra, tt.want.Extra) {
				t.Fatalf("extra = %v, want %v", got.Extra, tt.want.Extra)
			}
		})
	}
}

func TestPlanFullCleanAndLayout(t *testing.T) {
	if !(build.Plan{Areas: []string{"all"}}).FullClean() {
		t.Fatal("all areas should be a full clean")
	}
	if (build.Plan{Areas: []string{"tools"}}).FullClean() {
		t.Fatal("subset of areas should not be a full clean")
	}
	if !(build.Plan{Release: true, Areas: []string{"tools"}}).FullClean() {
		t.Fatal("release builds always clean fully")
	}
	if (build.Plan{Clean: true}).Layout() {
		t.Fatal("clean-only plan should not lay out")
	}
	if !(build.Plan{Release: true}).Layout() {
		t.Fatal("release plan should lay out")
	}
}

func TestSplitAreas(t *testing.T) {
	got := build.SplitAreas([]string{`"a,b"`, " c ", "", "d,,e"})
	want := []string{"a", "b", "c", "d", "e"}
	if !slices.Equal(got, want) {
		t.Fatalf("SplitAreas = %v, want %v", got, want)
	}
}
