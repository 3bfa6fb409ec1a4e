package extract

import "strings"

// TitleFilter decides whether a video title actually concerns the keyword,
// rather than merely ranking for it.
type TitleFilter struct {
	// Strict requires a match at all; when false every title passes.
	Strict bool
	// ExactMatch requires the keyword phrase (or a close variant) as a
	// substring. When false, every whitespace-separated word of the keyword
	// must appear somewhere in the title.
	ExactMatch bool
}

// Matches reports whether title passes the filter for keyword. Comparison
// is case-insensitive. Exact mode also accepts the hyphenated and the
// no-space variants of multi-word keywords.
func (f TitleFilter) Matches(title, keyword string) bool {
	if !f.Strict {
		return true
	}

	t := strings.ToLower(title)
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return true
	}

	if f.ExactMatch {
		for _, variant := range []string{
			kw,
			strings.ReplaceAll(kw, " ", "-"),
			strings.ReplaceAll(kw, " ", ""),
		} {
			if strings.Contains(t, variant) {
				return true
			}
		}
		return false
	}

	for _, word := range strings.Fields(kw) {
		if !strings.Contains(t, word) {
			return false
		}
	}
	return true
}
