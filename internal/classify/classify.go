// Package classify maps caught errors to test statuses. A closed allow-list
// of infrastructure failure shapes is absorbed as status=error; anything
// unrecognised is passed back to the caller to re-raise, so operators extend
// the list deliberately instead of the harness guessing.
package classify

import (
	"strings"

	"aipop/internal/types"
)

// Classification is the verdict for one caught error.
type Classification struct {
	Status    types.Status
	Category  types.Category
	ErrorName string
}

// infraPatterns is the closed allow-list: lowercase substrings that mark an
// error as infrastructure rather than a security signal.
var infraPatterns = map[string][]string{
	"connection_error": {
		"connection refused", "connection reset", "connection aborted",
		"broken pipe", "no such host", "network is unreachable", "dial tcp",
	},
	"timeout_error": {
		"timeout", "timed out", "deadline exceeded",
	},
	"retry_exhausted": {
		"max retries", "retry limit", "too many retries",
	},
	"authentication_error": {
		"authentication", "unauthorized", "invalid api key", "401",
		"permission denied to api", "forbidden", "403",
	},
	"rate_limit_error": {
		"rate limit", "too many requests", "429",
	},
	"ssl_error": {
		"ssl", "tls handshake", "certificate verify",
	},
	"proxy_error": {
		"proxy", "502 bad gateway", "bad gateway",
	},
	"redirect_error": {
		"too many redirects", "redirect loop",
	},
	"quota_error": {
		"quota", "insufficient_quota", "billing",
	},
}

// classOrder fixes the check order so overlapping patterns classify
// deterministically (e.g. "request timed out after 3 retries").
var classOrder = []string{
	"rate_limit_error",
	"quota_error",
	"authentication_error",
	"ssl_error",
	"proxy_error",
	"redirect_error",
	"timeout_error",
	"retry_exhausted",
	"connection_error",
}

// Classify inspects err. ok=false means the error is not on the allow-list
// and must be re-raised by the caller.
func Classify(err error) (Classification, bool) {
	if err == nil {
		return Classification{}, false
	}
	msg := strings.ToLower(err.Error())

	if IsMissingAPIKey(err) {
		return Classification{
			Status:    types.StatusError,
			Category:  types.CategoryInfrastructureError,
			ErrorName: "missing_api_key",
		}, true
	}

	for _, name := range classOrder {
		for _, pat := range infraPatterns[name] {
			if strings.Contains(msg, pat) {
				return Classification{
					Status:    types.StatusError,
					Category:  types.CategoryInfrastructureError,
					ErrorName: name,
				}, true
			}
		}
	}
	return Classification{}, false
}

// IsMissingAPIKey detects the common "no key configured" failure
// heuristically from the message content.
func IsMissingAPIKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "api key") && !strings.Contains(msg, "api_key") {
		return false
	}
	for _, cue := range []string{"missing", "not set", "not found", "empty", "no api key", "unset"} {
		if strings.Contains(msg, cue) {
			return true
		}
	}
	return false
}
