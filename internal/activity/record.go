// Package activity keeps an append-only JSONL log of what the persona
// decided and published.
package activity

import "time"

// RecordType classifies an activity record.
type RecordType string

const (
	// RecordReply is a published reply.
	RecordReply RecordType = "reply"
	// RecordPost is a published autonomous post.
	RecordPost RecordType = "post"
	// RecordSkip is an interaction that was fetched but not answered.
	RecordSkip RecordType = "skip"
	// RecordFailure is a failed fetch, generation or publish.
	RecordFailure RecordType = "failure"
	// RecordPass summarizes one monitoring pass.
	RecordPass RecordType = "pass"
)

// Record is one line in the activity log.
type Record struct {
	Timestamp     time.Time  `json:"timestamp"`
	PassID        string     `json:"pass_id,omitempty"`
	Type          RecordType `json:"type"`
	Source        string     `json:"source,omitempty"`
	InteractionID string     `json:"interaction_id,omitempty"`
	Author        string     `json:"author,omitempty"`
	Rule          string     `json:"rule,omitempty"`
	Template      string     `json:"template,omitempty"`
	PostID        string     `json:"post_id,omitempty"`
	Content       string     `json:"content,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Published reports whether the record is content the persona posted.
func (r Record) Published() bool {
	return r.Type == RecordReply || r.Type == RecordPost
}

// Recorder accepts activity records.
type Recorder interface {
	Append(records ...Record) error
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) Append(...Record) error { return nil }
