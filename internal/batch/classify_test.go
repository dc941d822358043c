package batch

import (
	"testing"

	"solotranscribe/internal/model"
)

func TestClassifyFetchError(t *testing.T) {
	tests := map[string]string{
		"ERROR: [youtube] x: Private video":                               model.ReasonAccessDenied,
		"ERROR: [youtube] x: Video unavailable":                           model.ReasonAccessDenied,
		"This video is not available in your country":                     model.ReasonAccessDenied,
		"Sign in to confirm your age":                                     model.ReasonAccessDenied,
		"Join this channel to get access to members-only content":         model.ReasonAccessDenied,
		"ERROR: unable to download video data: HTTP Error 403: Forbidden": model.ReasonAccessDenied,
		"ERROR: Unsupported URL: https://example.com":                     model.ReasonInvalidURL,
		"ERROR: 'foo' is not a valid URL":                                 model.ReasonInvalidURL,
		"live streams are not supported":                                  model.ReasonInvalidURL,
		"ERROR: unable to download webpage: timed out":                    model.ReasonDownloadFailed,
		"":                                                                model.ReasonDownloadFailed,
	}
	for msg, want := range tests {
		if got := ClassifyFetchError(msg); got != want {
			t.Fatalf("ClassifyFetchError(%q) = %s, want %s", msg, got, want)
		}
	}
}
