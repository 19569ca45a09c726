package driver

import "testing"

func TestJobsForHalvesReleaseSpecs(t *testing.T) {
	cases := []struct {
		spec       string
		configured int
		cpus       int
		want       int
	}{
		{"debug_linux64_gcc_x64", 0, 8, 8},
		{"release_linux64_gcc_x64", 0, 8, 4},
		{"device_release", 0, 1, 1},
		{"release_linux64_gcc_x64", 3, 8, 3},
	}
	for _, tc := range cases {
		if got := jobsFor(tc.spec, tc.configured, tc.cpus); got != tc.want {
			t.Fatalf("jobsFor(%q, %d, %d) = %d, want %d", tc.spec, tc.configured, tc.cpus, got, tc.want)
		}
	}
}
