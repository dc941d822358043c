package ytdlp

import (
	"net/url"
	"strings"
)

var platformDomains = []struct {
	name    string
	domains []string
}{
	{"YouTube", []string{"youtube.com", "youtu.be"}},
	{"TikTok", []string{"tiktok.com"}},
	{"Instagram", []string{"instagram.com"}},
	{"Facebook", []string{"facebook.com", "fb.watch"}},
	{"X/Twitter", []string{"twitter.com", "x.com"}},
	{"LinkedIn", []string{"linkedin.com"}},
	{"Vimeo", []string{"vimeo.com"}},
}

// DetectPlatform names the hosting platform from the URL host.
func DetectPlatform(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "Unknown"
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range platformDomains {
		for _, d := range p.domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return p.name
			}
		}
	}
	return "Unknown"
}
