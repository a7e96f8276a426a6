// Package postprocess turns raw transcripts into paste-ready text.
package postprocess

import (
	"regexp"
	"strings"
)

var (
	tagRE          = regexp.MustCompile(`\[[^\]]+\]`)
	spaceBeforeRE  = regexp.MustCompile(`\s+([,.!?;:])`)
	// Digits and further marks are left alone so "3.5" and "?!" survive.
	missingAfterRE = regexp.MustCompile(`([,.!?;:])([^\s\d,.!?;:])`)
)

// Cleanup strips [tag] artifacts such as [noise] or [музыка], normalizes
// whitespace and fixes spacing around punctuation. Cleanup(Cleanup(s)) ==
// Cleanup(s).
func Cleanup(s string) string {
	s = tagRE.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = spaceBeforeRE.ReplaceAllString(s, "$1")
	s = missingAfterRE.ReplaceAllString(s, "$1 $2")
	return s
}
