package tree

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxTitleLength is the rune count kept from content before the ellipsis.
	MaxTitleLength = 40
	// UntitledTitle names nodes whose content yields no usable text.
	UntitledTitle = "Untitled"
)

var checkboxMarkers = []string{"[ ]", "[x]", "[X]"}

// ResolveTitle keeps an explicit title, otherwise derives one from content.
func ResolveTitle(title, content string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return DeriveTitle(content)
}

// DeriveTitle builds a title from the first line of markdown that still has
// text once heading, quote, list and checkbox markers are removed.
func DeriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		text := stripLineMarkers(line)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > MaxTitleLength {
			runes := []rune(text)
			return strings.TrimRightFunc(string(runes[:MaxTitleLength]), unicode.IsSpace) + "..."
		}
		return text
	}
	return UntitledTitle
}

func stripLineMarkers(line string) string {
	s := strings.TrimSpace(line)
	if isRule(s) {
		return ""
	}
	for {
		before := s
		s = strings.TrimLeftFunc(s, isBlockRune)
		s = trimBullet(s)
		s = trimOrderedMarker(s)
		for _, m := range checkboxMarkers {
			s = strings.TrimPrefix(s, m)
		}
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	return strings.TrimSpace(inlineMarkers.Replace(s))
}

// inlineMarkers are paired emphasis and code markers dropped anywhere in
// the line. Single * and _ are kept since they also appear in plain text.
var inlineMarkers = strings.NewReplacer("**", "", "__", "", "~~", "", "`", "")

func isBlockRune(r rune) bool {
	switch r {
	case '#', '>', '|':
		return true
	}
	return unicode.IsSpace(r)
}

// trimBullet drops a "-", "*" or "+" list marker.
func trimBullet(s string) string {
	if s == "" || !strings.ContainsRune("-*+", rune(s[0])) {
		return s
	}
	if len(s) == 1 || s[1] == ' ' || s[1] == '\t' {
		return s[1:]
	}
	return s
}

// isRule reports whether s is a code fence, a thematic break or a setext
// underline.
func isRule(s string) bool {
	if strings.HasPrefix(s, "```") || strings.HasPrefix(s, "~~~") {
		return true
	}
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 3 || !strings.ContainsRune("-*_=~`", rune(s[0])) {
		return false
	}
	return strings.Count(s, s[:1]) == len(s)
}

// trimOrderedMarker drops "1." or "2)" style list prefixes.
func trimOrderedMarker(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return s
	}
	if s[i] != '.' && s[i] != ')' {
		return s
	}
	if i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '\t' {
		return s
	}
	return s[i+1:]
}
