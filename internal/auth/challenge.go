// File: internal/auth/challenge.go
package auth

import "regexp"

// The challenge interstitial assigns obfuscated args before redirecting, and
// this assignment is its stable fingerprint across target deployments.
var challengeMarker = regexp.MustCompile(`var\s+arg1\s*=\s*'`)

// IsChallenge reports whether a response body is the target's JS
// anti-automation interstitial rather than real content.
func IsChallenge(body string) bool {
	return challengeMarker.MatchString(body)
}
