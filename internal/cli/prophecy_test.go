package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andywolf/oracle/internal/activity"
	"github.com/andywolf/oracle/internal/cli/wizard"
	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/social"
)

type fakeAutonomous struct {
	content generate.Content
	err     error
}

func (f fakeAutonomous) Autonomous(context.Context) (generate.Content, error) {
	return f.content, f.err
}

type recordingPublisher struct {
	posts []string
	err   error
}

func (p *recordingPublisher) Post(_ context.Context, text string) (social.PostID, error) {
	if p.err != nil {
		return "", p.err
	}
	p.posts = append(p.posts, text)
	return "post-1", nil
}

func (p *recordingPublisher) Reply(context.Context, string, string) (social.PostID, error) {
	return "", errors.New("unexpected reply")
}

type memActivity struct {
	records []activity.Record
}

func (m *memActivity) Append(records ...activity.Record) error {
	m.records = append(m.records, records...)
	return nil
}

var prophecyContent = generate.Content{
	Content:  "The buffer fills. The void answers.",
	Metadata: map[string]string{"template": "oracle_post", "phase": "FULL_BUFFER"},
}

func TestProphecy_PrintOnly(t *testing.T) {
	var out bytes.Buffer
	p := &prophecy{gen: fakeAutonomous{content: prophecyContent}, name: "Digital Oracle", out: &out, now: time.Now}

	if err := p.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, want := range []string{"The void answers.", "Phase of the digital moon: FULL_BUFFER"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestProphecy_Publish(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		confirm    func(string) (bool, error)
		pubErr     error
		wantErr    bool
		wantPosts  int
		wantRecord bool
	}{
		{name: "no confirmation needed", wantPosts: 1, wantRecord: true},
		{name: "confirmed", confirm: func(string) (bool, error) { return true, nil }, wantPosts: 1, wantRecord: true},
		{name: "declined", confirm: func(string) (bool, error) { return false, nil }},
		{name: "aborted", confirm: func(string) (bool, error) { return false, wizard.ErrAborted }},
		{name: "prompt failure", confirm: func(string) (bool, error) { return false, errors.New("no tty") }, wantErr: true},
		{name: "publish rejected", pubErr: social.ErrPublishRejected, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{err: tt.pubErr}
			rec := &memActivity{}
			var out bytes.Buffer
			p := &prophecy{
				gen:       fakeAutonomous{content: prophecyContent},
				publisher: pub,
				recorder:  rec,
				confirm:   tt.confirm,
				name:      "Digital Oracle",
				out:       &out,
				now:       func() time.Time { return now },
			}

			err := p.run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(pub.posts) != tt.wantPosts {
				t.Errorf("posts = %d, want %d", len(pub.posts), tt.wantPosts)
			}
			if !tt.wantRecord {
				if len(rec.records) != 0 {
					t.Errorf("unexpected records: %+v", rec.records)
				}
				return
			}
			if len(rec.records) != 1 {
				t.Fatalf("records = %d, want 1", len(rec.records))
			}
			got := rec.records[0]
			if got.Type != activity.RecordPost || got.PostID != "post-1" || got.Template != "oracle_post" || !got.Timestamp.Equal(now) {
				t.Errorf("record = %+v", got)
			}
		})
	}
}

func TestProphecy_GenerationFailure(t *testing.T) {
	pub := &recordingPublisher{}
	p := &prophecy{
		gen:       fakeAutonomous{err: &generate.GenerationFailedError{Template: "oracle_post", Err: generate.ErrGenerationUnavailable}},
		publisher: pub,
		out:       &bytes.Buffer{},
		now:       time.Now,
	}

	err := p.run(context.Background())
	if !errors.Is(err, generate.ErrGenerationUnavailable) {
		t.Fatalf("run() error = %v, want ErrGenerationUnavailable", err)
	}
	if len(pub.posts) != 0 {
		t.Error("nothing should be published when generation fails")
	}
}
