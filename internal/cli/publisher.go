package cli

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/andywolf/oracle/internal/social"
)

// dryRunPublisher logs content instead of publishing it and hands out
// sequential local post IDs.
type dryRunPublisher struct {
	logger *log.Logger
	mu     sync.Mutex
	seq    int
}

// Ensure dryRunPublisher implements Publisher
var _ social.Publisher = (*dryRunPublisher)(nil)

func newDryRunPublisher(logger *log.Logger) *dryRunPublisher {
	return &dryRunPublisher{logger: logger}
}

func (p *dryRunPublisher) Post(ctx context.Context, text string) (social.PostID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := p.next()
	p.logger.Printf("Would post %s: %s", id, text)
	return id, nil
}

func (p *dryRunPublisher) Reply(ctx context.Context, text string, inReplyTo string) (social.PostID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := p.next()
	p.logger.Printf("Would reply %s to %s: %s", id, inReplyTo, text)
	return id, nil
}

func (p *dryRunPublisher) next() social.PostID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return social.PostID(fmt.Sprintf("dry-run-%d", p.seq))
}
