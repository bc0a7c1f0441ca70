package main

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestMain_Help runs main in a subprocess, the only way to cover it since
// cmd.Execute exits the process on error
func TestMain_Help(t *testing.T) {
	if os.Getenv("BEATDETECTOR_RUN_MAIN") == "1" {
		os.Args = []string{"beatdetector", "--help"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMain_Help")
	cmd.Env = append(os.Environ(), "BEATDETECTOR_RUN_MAIN=1")

	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("main --help failed: %v\n%s", err, output)
	}
	for _, want := range []string{"beatdetector", "listen", "--bpm"} {
		if !strings.Contains(string(output), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}
