package extract

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func videoRenderer(id, title, channel string) map[string]any {
	return map[string]any{
		"videoRenderer": map[string]any{
			"videoId": id,
			"title": map[string]any{
				"runs": []any{map[string]any{"text": title}},
			},
			"ownerText": map[string]any{
				"runs": []any{map[string]any{"text": channel}},
			},
			"viewCountText":     map[string]any{"simpleText": "1,234 views"},
			"publishedTimeText": map[string]any{"simpleText": "3 hours ago"},
			"lengthText":        map[string]any{"simpleText": "10:02"},
			"thumbnail": map[string]any{
				"thumbnails": []any{
					map[string]any{"url": "https://i.ytimg.com/vi/" + id + "/default.jpg"},
					map[string]any{"url": "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"},
				},
			},
		},
	}
}

func searchPage(t *testing.T, items ...map[string]any) []byte {
	t.Helper()
	blob := map[string]any{
		"contents": map[string]any{
			"twoColumnSearchResultsRenderer": map[string]any{
				"primaryContents": map[string]any{
					"sectionListRenderer": map[string]any{
						"contents": []any{
							map[string]any{
								"itemSectionRenderer": map[string]any{
									"contents": toAny(items),
								},
							},
						},
					},
				},
			},
		},
	}
	raw, err := json.Marshal(blob)
	require.NoError(t, err)
	return fmt.Appendf(nil,
		"<html><body><script>var ytInitialData = %s;</script></body></html>", raw)
}

func toAny(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

func TestParseExtractsVideoFields(t *testing.T) {
	page := searchPage(t, videoRenderer("dQw4w9WgXcQ", "Live Coding Session", "devchannel"))

	videos, err := Parse(page)
	require.NoError(t, err)
	require.Len(t, videos, 1)

	v := videos[0]
	require.Equal(t, "dQw4w9WgXcQ", v.ID)
	require.Equal(t, "Live Coding Session", v.Title)
	require.Equal(t, "devchannel", v.Channel)
	require.Equal(t, "1,234 views", v.ViewCount)
	require.Equal(t, "3 hours ago", v.PublishedAge)
	require.Equal(t, "10:02", v.Duration)
	require.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", v.ThumbnailURL)
}

func TestParseSkipsNonVideoItems(t *testing.T) {
	page := searchPage(t,
		map[string]any{"adSlotRenderer": map[string]any{}},
		videoRenderer("abc12345678", "Some Video", "chan"),
		map[string]any{"channelRenderer": map[string]any{"channelId": "UC123"}},
		map[string]any{"videoRenderer": map[string]any{"videoId": ""}},
	)

	videos, err := Parse(page)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	require.Equal(t, "abc12345678", videos[0].ID)
}

func TestParseMissingBlob(t *testing.T) {
	_, err := Parse([]byte("<html><body>nothing embedded here</body></html>"))
	require.Error(t, err)
}

func TestParseEmptyResults(t *testing.T) {
	page := searchPage(t)
	videos, err := Parse(page)
	require.NoError(t, err)
	require.Empty(t, videos)
}

func TestTitleRunsAreConcatenated(t *testing.T) {
	item := videoRenderer("xyz98765432", "", "chan")
	vr := item["videoRenderer"].(map[string]any)
	vr["title"] = map[string]any{
		"runs": []any{
			map[string]any{"text": "Part one "},
			map[string]any{"text": "and part two"},
		},
	}

	videos, err := Parse(searchPage(t, item))
	require.NoError(t, err)
	require.Len(t, videos, 1)
	require.Equal(t, "Part one and part two", videos[0].Title)
}

func TestTitleFilterExactMatchVariants(t *testing.T) {
	f := TitleFilter{Strict: true, ExactMatch: true}

	require.True(t, f.Matches("Best LOFI BEATS compilation", "lofi beats"))
	require.True(t, f.Matches("lofi-beats to study to", "lofi beats"))
	require.True(t, f.Matches("lofibeats 24/7 stream", "lofi beats"))
	require.False(t, f.Matches("beats for lofi lovers", "lofi beats"))
}

func TestTitleFilterAllWordsMode(t *testing.T) {
	f := TitleFilter{Strict: true, ExactMatch: false}

	require.True(t, f.Matches("beats for lofi lovers", "lofi beats"))
	require.False(t, f.Matches("beats for studying", "lofi beats"))
}

func TestTitleFilterDisabled(t *testing.T) {
	f := TitleFilter{Strict: false}
	require.True(t, f.Matches("completely unrelated", "lofi beats"))
}
