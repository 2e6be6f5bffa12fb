package redact

import "strings"

var sensitiveHeaders = []string{"authorization", "cookie", "set-cookie", "proxy-authorization", "x-api-key"}

const mask = "***"

// IsSensitiveHeader reports whether a header name carries credentials or
// session material that should not reach downstream log storage.
func IsSensitiveHeader(name string) bool {
	name = strings.ToLower(name)
	for _, s := range sensitiveHeaders {
		if name == s {
			return true
		}
	}
	return false
}

// HeaderValue masks the value of name when the header is sensitive.
func HeaderValue(name, value string) string {
	if IsSensitiveHeader(name) {
		return mask
	}
	return value
}
