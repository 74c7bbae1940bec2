package secret

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	rePassword = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
	reDSNPass  = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)
)

// Mask hides passwords in DSNs and key=value strings.
func Mask(s string) string {
	if u, err := url.Parse(s); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			s = strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
			return rePassword.ReplaceAllString(s, "$1***")
		}
	}
	out := reDSNPass.ReplaceAllString(s, "$1***$3")
	return rePassword.ReplaceAllString(out, "$1***")
}

// MaskValue hides a secret entirely, keeping only whether it was set.
func MaskValue(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
