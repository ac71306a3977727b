package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURLAcceptsPublicHTTP(t *testing.T) {
	for _, url := range []string{
		"https://203.0.113.5/video/1",
		"http://198.51.100.7/clip",
	} {
		v := ValidateURL(url)
		assert.True(t, v.Valid, url)
	}
}

func TestValidateURLRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"ftp://203.0.113.5/file",
		"javascript:alert(1)",
		"https://" + strings.Repeat("a", 3000) + ".com",
	}
	for _, url := range cases {
		v := ValidateURL(url)
		assert.False(t, v.Valid, url)
		assert.NotEmpty(t, v.Error)
	}
}

func TestValidateURLRejectsPrivateHosts(t *testing.T) {
	cases := []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://172.16.0.1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/",
	}
	for _, url := range cases {
		v := ValidateURL(url)
		assert.False(t, v.Valid, url)
	}
}

func TestNeedsCookiesRetry(t *testing.T) {
	assert.True(t, NeedsCookiesRetry("ERROR: Sign in to confirm you're not a bot"))
	assert.True(t, NeedsCookiesRetry("ERROR: Private video"))
	assert.False(t, NeedsCookiesRetry("ERROR: HTTP 404"))
	assert.False(t, NeedsCookiesRetry(""))
}
