package detector

import "strings"

// openPlatforms are video hosts whose content is publicly downloadable.
// A match short-circuits classification to requiresAuth=false.
var openPlatforms = map[string]string{
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"vimeo.com":       "Vimeo",
	"dailymotion.com": "Dailymotion",
	"twitch.tv":       "Twitch",
	"archive.org":     "Internet Archive",
	"ted.com":         "TED",
	"soundcloud.com":  "SoundCloud",
}

// authPlatforms are LMS and lecture-capture systems that sit behind a login
// wall. Matched against host fragments.
var authPlatforms = map[string]string{
	"moodle":      "Moodle",
	"canvas":      "Canvas",
	"blackboard":  "Blackboard",
	"panopto":     "Panopto",
	"echo360":     "Echo360",
	"kaltura":     "Kaltura",
	"mediasite":   "Mediasite",
	"brightspace": "Brightspace",
	"sakai":       "Sakai",
	"ilias":       "ILIAS",
}

// institutionalKeywords suggest a university or corporate host.
var institutionalKeywords = []string{
	"university", "college", "campus", "institute", "faculty", "intranet",
}

// authPathSegments are URL path fragments that imply a protected resource.
var authPathSegments = []string{
	"/login", "/signin", "/sign-in", "/auth", "/sso", "/protected",
	"/lms", "/portal", "/secure", "/members", "/account",
}

// matchOpenPlatform returns the display name when the host belongs to a known
// open platform (exact domain or subdomain).
func matchOpenPlatform(host string) (string, bool) {
	host = strings.ToLower(host)
	for domain, name := range openPlatforms {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return name, true
		}
	}
	return "", false
}

// matchAuthPlatform returns the display name when the host contains a known
// auth-walled platform fragment.
func matchAuthPlatform(host string) (string, bool) {
	host = strings.ToLower(host)
	for fragment, name := range authPlatforms {
		if strings.Contains(host, fragment) {
			return name, true
		}
	}
	return "", false
}
