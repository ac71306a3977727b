package util

import (
	"os"
	"strings"

	"github.com/ndmitry/grabit/internal/config"
)

var botDetectionErrors = []string{
	"Sign in to confirm you",
	"confirm your age",
	"Sign in to confirm your age",
	"This video is unavailable",
	"Private video",
}

func HasCookiesFile() bool {
	_, err := os.Stat(config.CookiesFile)
	return err == nil
}

func NeedsCookiesRetry(errorOutput string) bool {
	for _, e := range botDetectionErrors {
		if strings.Contains(errorOutput, e) {
			return true
		}
	}
	return false
}

func GetCookiesArgs() []string {
	if HasCookiesFile() {
		return []string{"--cookies", config.CookiesFile}
	}
	return nil
}
