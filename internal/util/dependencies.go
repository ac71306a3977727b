package util

import (
	"fmt"
	"os/exec"
)

func CheckDependencies() {
	deps := []struct {
		name     string
		required bool
	}{
		{"yt-dlp", true},
		{"ffmpeg", true},
		{"ffprobe", true},
	}

	for _, dep := range deps {
		path, err := exec.LookPath(dep.name)
		if err != nil {
			if dep.required {
				fmt.Printf("✗ %s not found (REQUIRED)\n", dep.name)
			} else {
				fmt.Printf("- %s not found (optional)\n", dep.name)
			}
		} else {
			fmt.Printf("✓ %s found: %s\n", dep.name, path)
		}
	}
}
