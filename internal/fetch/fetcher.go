package fetch

import (
	"context"
	neturl "net/url"

	"github.com/rs/zerolog/log"
)

// Fetcher is the component-level façade combining static and rendered
// retrieval with the spec's fallback policy: "If rendered fetch fails or
// is unavailable, static fetch is the fallback; the caller receives a flag
// indicating which mode produced the content."
type Fetcher struct {
	Static   *Client
	Renderer *Renderer
}

// New builds a Fetcher with the given limiter and politeness policy shared
// across static fetches. Renderer is optional; pass nil to disable
// rendered fetch entirely.
func New(limiter *Limiter, politeness *Politeness, renderer *Renderer) *Fetcher {
	c := NewClient(limiter)
	c.Robots = politeness
	return &Fetcher{Static: c, Renderer: renderer}
}

// Fetch prefers the renderer when available, falling back to the static
// client on renderer failure or absence.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	if f.Renderer != nil && f.Renderer.Available() {
		// Rendered fetches share the static client's Limiter so both modes
		// count against the same overall and per-host caps.
		release := func() {}
		if f.Static != nil && f.Static.Limiter != nil {
			if u, err := neturl.Parse(url); err == nil {
				release = f.Static.Limiter.Acquire(ctx, u.Hostname())
			}
		}
		res := f.Renderer.Fetch(ctx, url)
		release()
		if res.Err == nil {
			return res
		}
		log.Debug().Err(res.Err).Str("url", url).Msg("rendered fetch failed; falling back to static")
	}
	res := f.Static.Get(ctx, url)
	res.Mode = ModeStatic
	return res
}
