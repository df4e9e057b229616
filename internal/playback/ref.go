package playback

import (
	"regexp"
	"strings"
)

var (
	urlRefPattern  = regexp.MustCompile(`(?:v=|\.be/)([^&?#/]+)`)
	bareRefPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	refCharset     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ParseVideoRef extracts a video reference from user input. It accepts
// "watch?v=" and "youtu.be/" links as well as a bare 11 character id.
func ParseVideoRef(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidVideoRef
	}
	if bareRefPattern.MatchString(input) {
		return input, nil
	}
	m := urlRefPattern.FindStringSubmatch(input)
	if m == nil || !refCharset.MatchString(m[1]) {
		return "", ErrInvalidVideoRef
	}
	return m[1], nil
}

// ValidRef reports whether ref can be stored as a video reference.
func ValidRef(ref string) bool {
	return ref != "" && len(ref) <= 64 && refCharset.MatchString(ref)
}

func WatchURL(ref string) string {
	return "https://www.youtube.com/watch?v=" + ref
}

func ThumbnailURL(ref string) string {
	return "https://img.youtube.com/vi/" + ref + "/hqdefault.jpg"
}
