// Package magnet validates magnet links and extracts their display name.
package magnet

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidInput is returned for arguments that are not magnet links.
var ErrInvalidInput = errors.New("not a magnet link")

// UnknownName is used when a link carries no usable dn parameter.
const UnknownName = "Unknown"

var dnPattern = regexp.MustCompile(`dn=([^&]+)`)

// Parse validates s and returns it trimmed.
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "magnet:") {
		return "", ErrInvalidInput
	}
	return s, nil
}

// DisplayName returns the dn= value with '+' as space, URL-decoded.
func DisplayName(link string) string {
	m := dnPattern.FindStringSubmatch(link)
	if m == nil {
		return UnknownName
	}
	raw := strings.ReplaceAll(m[1], "+", " ")
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	if strings.TrimSpace(name) == "" {
		return UnknownName
	}
	return name
}
