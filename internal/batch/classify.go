package batch

import (
	"strings"

	"solotranscribe/internal/model"
)

var accessDeniedHints = []string{
	"private",
	"blocked",
	"available", // "not available", "unavailable"
	"sign in",
	"login required",
	"members-only",
	"members only",
	"http error 403",
	"forbidden",
	"age-restricted",
	"confirm your age",
}

var invalidURLHints = []string{
	"invalid url",
	"unsupported url",
	"is not a valid url",
	"live stream",
	"no video could be found",
}

// ClassifyFetchError maps fetch adapter error text onto the failure
// taxonomy. Unmatched text is a generic download failure.
func ClassifyFetchError(s string) string {
	text := strings.ToLower(s)
	for _, h := range accessDeniedHints {
		if strings.Contains(text, h) {
			return model.ReasonAccessDenied
		}
	}
	for _, h := range invalidURLHints {
		if strings.Contains(text, h) {
			return model.ReasonInvalidURL
		}
	}
	return model.ReasonDownloadFailed
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
