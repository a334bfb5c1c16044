package monitor

import (
	"time"

	"github.com/andywolf/oracle/internal/classify"
	"github.com/andywolf/oracle/internal/social"
	"github.com/andywolf/oracle/internal/state"
)

// Classifier decides what to do with one interaction.
type Classifier interface {
	Classify(in social.Interaction) classify.Action
}

// ReasonOwnPost marks interactions written by the persona itself.
const ReasonOwnPost = "own post"

// Plan classifies the interactions of every completed source. Order is
// source order, then each source's chronological order. An interaction
// seen through more than one source is evaluated once; the returned count
// is how many repeats were dropped. Interactions by self are ignored
// without consulting the classifier.
func Plan(c Classifier, self string, results []SourceResult) ([]Decision, int) {
	self = classify.NormalizeHandle(self)
	seen := make(map[string]bool)
	duplicates := 0

	var decisions []Decision
	for _, res := range results {
		if !res.Completed() {
			continue
		}
		items := append([]social.Interaction(nil), res.Interactions...)
		social.SortChronological(items)

		for _, in := range items {
			if in.ID != "" {
				if seen[in.ID] {
					duplicates++
					continue
				}
				seen[in.ID] = true
			}

			if self != "" && classify.NormalizeHandle(in.Author) == self {
				decisions = append(decisions, Decision{
					Interaction: in,
					Action:      classify.Action{Kind: classify.Ignore},
					Reason:      ReasonOwnPost,
				})
				continue
			}

			decisions = append(decisions, Decision{Interaction: in, Action: c.Classify(in)})
		}
	}
	return decisions, duplicates
}

// Advance returns the state after a pass whose fetches were issued at
// issuedAt. Cursors of completed sources move to issuedAt; failed sources
// keep theirs. The watermark moves if any source completed, or if there
// are no sources at all. Nothing ever moves backward.
func Advance(prev state.State, results []SourceResult, issuedAt time.Time) state.State {
	next := prev.Clone()

	anyCompleted := len(results) == 0
	for _, res := range results {
		if next.Cursors == nil {
			next.Cursors = make(map[string]time.Time, len(results))
		}
		if !res.Completed() {
			// Pin the window so a later watermark does not skip it.
			next.Cursors[res.Source] = prev.Cursor(res.Source)
			continue
		}
		anyCompleted = true
		next.Cursors[res.Source] = state.Later(prev.Cursor(res.Source), issuedAt)
	}

	if anyCompleted {
		next.Watermark = state.Later(prev.Watermark, issuedAt)
	}
	return next
}
