package verifytech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliotttmiller/signalscout/internal/fetch"
)

func newFetcher() *fetch.Fetcher {
	return fetch.New(fetch.NewLimiter(5, 2), nil, nil)
}

func TestVerifyUnreachableYieldsZeroComposite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := Verify(context.Background(), newFetcher(), srv.URL)
	require.False(t, res.Reachable)
	require.Zero(t, res.Composite)
}

func TestVerifyRichStreamingPageYieldsHighComposite(t *testing.T) {
	body := `<html><head><title>Watch NFL Live Stream Free Online</title>
	<meta name="description" content="Watch live nfl streams online free hd schedule"></head>
	<body>
	<video src="a.mp4"></video>
	<iframe src="https://player.example/stream/embed"></iframe>
	<div id="player" class="live-stream schedule"></div>
	<script>var x = jwplayer('container'); hls.js player setup</script>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	res := Verify(context.Background(), newFetcher(), srv.URL)
	require.True(t, res.Reachable)
	require.GreaterOrEqual(t, res.Composite, 50)
	require.Contains(t, res.DOMIndicators, "video_tags")
	require.Equal(t, "Watch NFL Live Stream Free Online", res.Title)
}

func TestVerifyPlainPageYieldsLowComposite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>About Us</title></head><body><p>Contact our team.</p></body></html>`))
	}))
	defer srv.Close()

	res := Verify(context.Background(), newFetcher(), srv.URL)
	require.True(t, res.Reachable)
	require.Less(t, res.Composite, 50)
}
