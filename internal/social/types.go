// Package social defines the platform-facing types of the persona agent:
// inbound interactions, the sources that produce them and the sink that
// publishes posts and replies.
package social

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind identifies how an interaction reached the persona.
type Kind string

const (
	// KindMention is a post that mentions the persona's handle.
	KindMention Kind = "mention"
	// KindTrackedPost is a post from one of the tracked accounts.
	KindTrackedPost Kind = "tracked_post"
)

// Interaction is one inbound unit of attention from the platform.
// Interactions are read-only and live only for the duration of one pass.
type Interaction struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Kind      Kind      `json:"kind"`
}

// PostID identifies a post or reply published by the persona.
type PostID string

// Source produces interactions newer than a cursor. Fetch must accept an
// arbitrarily old (or zero) since and return an empty slice, not an error,
// when there is nothing new. Results are ordered oldest first.
type Source interface {
	ID() string
	Fetch(ctx context.Context, since time.Time) ([]Interaction, error)
}

// Publisher is the sink for the persona's own posts.
type Publisher interface {
	Post(ctx context.Context, text string) (PostID, error)
	Reply(ctx context.Context, text string, inReplyTo string) (PostID, error)
}

var (
	// ErrPublishRejected means the platform refused the content (policy,
	// duplicate, validation).
	ErrPublishRejected = errors.New("publish rejected")

	// ErrPublishUnavailable means the platform could not be reached or is
	// temporarily refusing requests.
	ErrPublishUnavailable = errors.New("publish unavailable")
)

// FetchError reports a failed fetch for a single source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SortChronological orders interactions oldest first, keeping the original
// relative order of interactions with equal timestamps.
func SortChronological(items []Interaction) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
