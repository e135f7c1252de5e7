package transcript

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidVideoID is returned when input is neither an 11-character
// YouTube video ID nor a recognised YouTube URL.
var ErrInvalidVideoID = errors.New("transcript: invalid YouTube video id")

// videoIDPattern matches a bare YouTube video identifier.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// youtubeHosts lists the hostnames that serve watch pages.
var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// pathPrefixes are the URL path segments that are followed by the video ID.
var pathPrefixes = map[string]bool{
	"shorts": true,
	"embed":  true,
	"live":   true,
	"v":      true,
}

// ParseVideoID returns the video ID in raw, which may be a bare ID or any of:
//
//	https://www.youtube.com/watch?v={id}
//	https://youtu.be/{id}
//	https://www.youtube.com/shorts/{id}
//	https://www.youtube.com/embed/{id}
//	https://www.youtube.com/live/{id}
func ParseVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidVideoID
	}

	host := strings.ToLower(parsed.Hostname())
	segments := trimSegments(parsed.Path)

	var id string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		if len(segments) > 0 {
			id = segments[0]
		}

	case youtubeHosts[host]:
		if v := parsed.Query().Get("v"); v != "" {
			id = v
		} else if len(segments) >= 2 && pathPrefixes[strings.ToLower(segments[0])] {
			id = segments[1]
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", ErrInvalidVideoID
	}
	return id, nil
}

// WatchURL returns the canonical watch page URL for videoID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
