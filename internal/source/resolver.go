// Package source turns user-supplied media references into validated
// track identifiers. Resolution is pure string matching; no network access.
package source

import (
	"errors"
	"regexp"
)

// ID identifies one remote media item: exactly 11 characters of
// [A-Za-z0-9_-]. It is the cache key and the argument to acquisition
// and streaming.
type ID string

func (id ID) String() string { return string(id) }

// WatchURL returns the canonical watch URL for the identifier.
func (id ID) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

var ErrInvalidReference = errors.New("invalid media reference")

var rawIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Extraction patterns tried in order against free-form references.
// Mirrors the URL shapes accepted by the web client: watch URLs,
// embeds, short links and shorts.
var refPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`embed/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`shorts/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/([0-9A-Za-z_-]{11})(?:[?&#]|$)`),
}

// Resolve validates a raw identifier or extracts one from a URL.
// The first pattern producing an 11-character match wins.
func Resolve(ref string) (ID, error) {
	if rawIDPattern.MatchString(ref) {
		return ID(ref), nil
	}

	for _, p := range refPatterns {
		if m := p.FindStringSubmatch(ref); m != nil {
			return ID(m[1]), nil
		}
	}

	return "", ErrInvalidReference
}
