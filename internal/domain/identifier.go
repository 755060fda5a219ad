package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultLatestPattern matches the station identifier in a latest feed URL.
	DefaultLatestPattern = `/observationAms_(.*?)_latest\.xml`
	// DefaultHistoryPattern matches the station identifier in a history feed URL.
	DefaultHistoryPattern = `/observationAms_(.*?)_history\.xml`

	// DefaultHistoryURLTemplate is the history feed location; {id} is replaced
	// with the station identifier.
	DefaultHistoryURLTemplate = "http://meteo.arso.gov.si/uploads/probase/www/observ/surface/text/sl/recent/observationAms_{id}_history.xml"

	// IdentifierPlaceholder is substituted by BuildHistoryURL.
	IdentifierPlaceholder = "{id}"
)

var (
	// LatestPattern and HistoryPattern are the compiled default patterns.
	LatestPattern  = regexp.MustCompile(DefaultLatestPattern)
	HistoryPattern = regexp.MustCompile(DefaultHistoryPattern)
)

// CompileIdentifierPattern compiles expr and checks that it has exactly one
// capture group.
func CompileIdentifierPattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile identifier pattern: %w", err)
	}
	if n := re.NumSubexp(); n != 1 {
		return nil, fmt.Errorf("identifier pattern %q must have exactly one capture group, has %d", expr, n)
	}
	return re, nil
}

// ExtractIdentifier returns the first capture group of pattern in rawURL.
// It reports false when the pattern does not match or captures an empty string.
func ExtractIdentifier(rawURL string, pattern *regexp.Regexp) (string, bool) {
	if pattern == nil {
		return "", false
	}
	m := pattern.FindStringSubmatch(rawURL)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// BuildHistoryURL substitutes id into template.
func BuildHistoryURL(template, id string) string {
	return strings.ReplaceAll(template, IdentifierPlaceholder, id)
}
