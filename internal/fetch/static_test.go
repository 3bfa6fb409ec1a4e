package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSearchURL(t *testing.T) {
	got := SearchURL("https://www.youtube.com/results", "lofi beats", "CAISBAgBEAE%253D")
	require.Equal(t,
		"https://www.youtube.com/results?search_query=lofi+beats&sp=CAISBAgBEAE%253D", got)

	got = SearchURL("https://www.youtube.com/results", "demo", "")
	require.Equal(t, "https://www.youtube.com/results?search_query=demo", got)
}

func TestPageReturnsBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte("<html>payload</html>"))
	}))
	defer srv.Close()

	c := New(nil, "agent-under-test/1.0", 5*time.Second)
	body, err := c.Page(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<html>payload</html>", string(body))
	require.Equal(t, "agent-under-test/1.0", gotUA)
}

func TestPageErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "go away", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(nil, "", 5*time.Second)
	_, err := c.Page(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestPageFreshStatePerCall(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(nil, "", 5*time.Second)
	for i := 0; i < 3; i++ {
		_, err := c.Page(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.Equal(t, 3, hits)
}
