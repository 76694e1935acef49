package links

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lysyi3m/linksift/app/database"
)

var (
	schemePrefix  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	brokenScheme  = regexp.MustCompile(`^:/{1,2}`)
	allowedScheme = map[string]bool{"http": true, "https": true}
)

// NormalizeURL turns user input into the canonical href stored for a link.
// Input without a scheme is taken as https.
func NormalizeURL(raw string) (href string, hostname string, err error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", "", fmt.Errorf("%w: URL is empty", database.ErrValidation)
	}

	if !schemePrefix.MatchString(candidate) {
		candidate = "https://" + brokenScheme.ReplaceAllString(candidate, "")
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid URL %q", database.ErrValidation, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if !allowedScheme[u.Scheme] {
		return "", "", fmt.Errorf("%w: unsupported URL scheme %q", database.ErrValidation, u.Scheme)
	}
	if u.Hostname() == "" || u.User != nil {
		return "", "", fmt.Errorf("%w: invalid URL %q", database.ErrValidation, raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), u.Hostname(), nil
}
