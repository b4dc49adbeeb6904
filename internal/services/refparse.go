package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reference is an explicit scripture reference parsed from user text
type Reference struct {
	Book       string
	Chapter    int
	VerseStart int
	VerseEnd   int
}

var compactRE = regexp.MustCompile(`\s+`)

var parsePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?P<book>.+?)(?P<chapter>\d+):(?P<verse>\d+)$`),
	regexp.MustCompile(`^(?P<book>.+?)(?P<chapter>\d+)장(?P<verse>\d+)절?$`),
	regexp.MustCompile(`^(?P<book>.+?)(?P<chapter>\d+)(?P<verse>\d+)$`),
}

var extractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?P<book>(?:[1-3]\s*)?[A-Za-z가-힣]+)\s*(?P<chapter>\d+)\s*:\s*(?P<verse>\d+)(?:\s*[-~]\s*(?P<verseEnd>\d+))?`),
	regexp.MustCompile(`(?i)(?P<book>(?:[1-3]\s*)?[A-Za-z가-힣]+)\s*(?P<chapter>\d+)\s*장\s*(?P<verse>\d+)\s*절?(?:\s*[-~]\s*(?P<verseEnd>\d+)\s*절?)?`),
}

// ParseReference parses a compact reference string such as "요3:16" or
// "요한복음 3장 16절" into book, chapter, and verse. Returns an error for
// anything that does not look like a reference.
func ParseReference(raw string) (string, int, int, error) {
	compact := compactRE.ReplaceAllString(strings.TrimSpace(raw), "")
	for _, pat := range parsePatterns {
		m := pat.FindStringSubmatch(compact)
		if m == nil {
			continue
		}
		book := m[pat.SubexpIndex("book")]
		chapter, _ := strconv.Atoi(m[pat.SubexpIndex("chapter")])
		verse, _ := strconv.Atoi(m[pat.SubexpIndex("verse")])
		return book, chapter, verse, nil
	}
	return "", 0, 0, fmt.Errorf("invalid reference: %q", raw)
}

// ExtractReference finds the first explicit reference in free text, in either
// "Book C:V[-V2]" or "Book C장 V절[-V2절]" notation. Returns nil when the text
// has no reference.
func ExtractReference(text string) *Reference {
	if text == "" {
		return nil
	}
	for _, pat := range extractPatterns {
		m := pat.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		book := strings.Trim(compactRE.ReplaceAllString(m[pat.SubexpIndex("book")], ""), ".,")
		chapter, _ := strconv.Atoi(m[pat.SubexpIndex("chapter")])
		verse, _ := strconv.Atoi(m[pat.SubexpIndex("verse")])
		verseEnd := verse
		if end := m[pat.SubexpIndex("verseEnd")]; end != "" {
			verseEnd, _ = strconv.Atoi(end)
		}
		if verseEnd < verse {
			verseEnd = verse
		}
		return &Reference{Book: book, Chapter: chapter, VerseStart: verse, VerseEnd: verseEnd}
	}
	return nil
}
