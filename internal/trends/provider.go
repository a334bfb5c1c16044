package trends

import (
	"context"
	"log"
	"os"
	"strings"
)

// DefaultTrends are used when no live trend feed is configured or the feed
// fails.
var DefaultTrends = []string{
	"Sustainable Fashion",
	"Digital Wear",
	"Y2K Revival",
	"Minimalist Luxury",
}

// DefaultRecentLimit is how many recent posts are offered as context.
const DefaultRecentLimit = 5

// Provider answers "what's happening now" for generation. Neither method
// fails: a broken upstream yields a fallback or an empty slice.
type Provider interface {
	CurrentTrends(ctx context.Context) []string
	RecentPosts(ctx context.Context) []string
}

// TrendFetcher returns live trend titles for a location.
type TrendFetcher interface {
	Trends(ctx context.Context, woeid int) ([]string, error)
}

// PostLister returns the persona's most recent posts, newest first.
type PostLister interface {
	RecentPosts(ctx context.Context, handle string, limit int) ([]string, error)
}

// ContextProvider combines an optional live trend feed, a static fallback and
// a recent-posts lister.
type ContextProvider struct {
	Trends      TrendFetcher
	WOEID       int
	Fallback    []string
	Posts       PostLister
	Handle      string
	RecentLimit int
	Logger      *log.Logger
}

// Ensure ContextProvider implements Provider
var _ Provider = (*ContextProvider)(nil)

// NewContextProvider creates a provider with the default fallback trends and
// no live feeds.
func NewContextProvider(handle string) *ContextProvider {
	return &ContextProvider{
		Fallback:    DefaultTrends,
		Handle:      handle,
		RecentLimit: DefaultRecentLimit,
		Logger:      log.New(os.Stdout, "[trends] ", log.LstdFlags),
	}
}

// CurrentTrends returns live trends when available, otherwise the fallback.
func (p *ContextProvider) CurrentTrends(ctx context.Context) []string {
	if p.Trends != nil {
		live, err := p.Trends.Trends(ctx, p.WOEID)
		switch {
		case err != nil:
			p.logf("Warning: trend fetch failed, using fallback: %v", err)
		case len(live) == 0:
			p.logf("Trend feed returned nothing, using fallback")
		default:
			return live
		}
	}
	return copyNonEmpty(p.Fallback)
}

// RecentPosts returns up to RecentLimit of the persona's own recent posts.
func (p *ContextProvider) RecentPosts(ctx context.Context) []string {
	if p.Posts == nil {
		return []string{}
	}
	limit := p.RecentLimit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	posts, err := p.Posts.RecentPosts(ctx, p.Handle, limit)
	if err != nil {
		p.logf("Warning: recent posts unavailable: %v", err)
		return []string{}
	}
	posts = copyNonEmpty(posts)
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts
}

func (p *ContextProvider) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

func copyNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Static is a fixed Provider, used by the interactive shell and tests.
type Static struct {
	TrendList []string
	PostList  []string
}

func (s Static) CurrentTrends(context.Context) []string { return copyNonEmpty(s.TrendList) }

func (s Static) RecentPosts(context.Context) []string { return copyNonEmpty(s.PostList) }
