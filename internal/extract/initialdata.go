// Package extract pulls video candidates out of a search results page. The
// page embeds its result set as a JSON blob assigned to ytInitialData; that
// blob is the source of truth, not the rendered DOM.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var initialDataRe = regexp.MustCompile(`(?s)var ytInitialData = (\{.*?\});`)

// Video is one raw entry lifted from the results blob.
type Video struct {
	ID           string
	Title        string
	Channel      string
	ViewCount    string
	PublishedAge string
	Duration     string
	ThumbnailURL string
}

// InitialData locates and decodes the embedded results blob. Returns an
// error when the page carries no blob at all; a blob with zero videos is
// not an error.
func InitialData(html []byte) (map[string]any, error) {
	m := initialDataRe.FindSubmatch(html)
	if m == nil {
		return nil, fmt.Errorf("no ytInitialData blob in page")
	}
	var data map[string]any
	if err := json.Unmarshal(m[1], &data); err != nil {
		return nil, fmt.Errorf("decode ytInitialData: %w", err)
	}
	return data, nil
}

// Videos walks the decoded blob down to the video renderers. Malformed or
// non-video entries (ads, shelves, channels) are skipped silently.
func Videos(data map[string]any) []Video {
	sections := dig(data,
		"contents",
		"twoColumnSearchResultsRenderer",
		"primaryContents",
		"sectionListRenderer",
		"contents",
	)

	var out []Video
	for _, section := range asSlice(sections) {
		items := dig(section, "itemSectionRenderer", "contents")
		for _, item := range asSlice(items) {
			vr, ok := dig(item, "videoRenderer").(map[string]any)
			if !ok {
				continue
			}
			v, ok := parseRenderer(vr)
			if !ok {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

// Parse is the one-shot form: blob location plus renderer walk.
func Parse(html []byte) ([]Video, error) {
	data, err := InitialData(html)
	if err != nil {
		return nil, err
	}
	return Videos(data), nil
}

func parseRenderer(vr map[string]any) (Video, bool) {
	id, _ := vr["videoId"].(string)
	if id == "" {
		return Video{}, false
	}

	v := Video{
		ID:           id,
		Title:        runsText(dig(vr, "title")),
		Channel:      runsText(dig(vr, "ownerText")),
		ViewCount:    simpleText(dig(vr, "viewCountText")),
		PublishedAge: simpleText(dig(vr, "publishedTimeText")),
		Duration:     simpleText(dig(vr, "lengthText")),
	}
	if v.Title == "" {
		return Video{}, false
	}

	thumbs := asSlice(dig(vr, "thumbnail", "thumbnails"))
	if len(thumbs) > 0 {
		if url, ok := dig(thumbs[len(thumbs)-1], "url").(string); ok {
			v.ThumbnailURL = url
		}
	}
	return v, true
}

// runsText flattens a {runs: [{text: ...}]} node.
func runsText(node any) string {
	out := ""
	for _, run := range asSlice(dig(node, "runs")) {
		if s, ok := dig(run, "text").(string); ok {
			out += s
		}
	}
	return out
}

// simpleText reads a {simpleText: ...} node, falling back to runs.
func simpleText(node any) string {
	if s, ok := dig(node, "simpleText").(string); ok {
		return s
	}
	return runsText(node)
}

// dig descends a chain of map keys, returning nil as soon as any hop is
// missing or the wrong shape.
func dig(node any, keys ...string) any {
	cur := node
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func asSlice(node any) []any {
	s, _ := node.([]any)
	return s
}
