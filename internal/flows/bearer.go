package flows

import "strings"

// BearerPrefix is the exact, case-sensitive Authorization scheme accepted.
const BearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header value. ok is
// false when the header does not carry the Bearer scheme.
func BearerToken(header string) (token string, ok bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(BearerPrefix):]), true
}
