package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/colab/internal/engine"
	"github.com/kalambet/colab/internal/model"
)

func TestBuildBriefing(t *testing.T) {
	got := BuildBriefing("Bot", "A bot.", []RoleSection{
		{
			Role: model.RoleDeveloper,
			Candidates: []Candidate{
				{Name: "Ana", Email: "ana@example.com", Skills: "Go", Reliability: "4.5/5", GitHub: "No GitHub provided."},
				{Name: "Bo", Email: "bo@example.com", Skills: "Rust", Reliability: "No Reviews", GitHub: "No data"},
			},
		},
		{Role: model.RoleDesigner},
	})

	want := "Project Title: Bot\n" +
		"Project Description: A bot.\n\n" +
		"Here are the roles to fill and the top candidates found by the AI search:\n\n" +
		"--- ROLE: Developer ---\n" +
		"Candidate 1: Ana (Email: ana@example.com)\n" +
		"Skills: Go\n" +
		"Reliability: 4.5/5\n" +
		"GitHub Analysis: No GitHub provided.\n\n" +
		"Candidate 2: Bo (Email: bo@example.com)\n" +
		"Skills: Rust\n" +
		"Reliability: No Reviews\n" +
		"GitHub Analysis: No data\n\n" +
		"--- ROLE: Designer ---\n" +
		"No candidates found.\n\n"
	assert.Equal(t, want, got)
}

type mockStreamer struct {
	chunks  []string
	err     error
	gotOpts engine.ChatOptions
	gotMsgs []engine.Message
}

func (m *mockStreamer) ChatStream(ctx context.Context, _ string, msgs []engine.Message, opts engine.ChatOptions, onChunk func(string) error) error {
	m.gotOpts = opts
	m.gotMsgs = msgs
	for _, c := range m.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return m.err
}

func TestStream_Collects(t *testing.T) {
	s := &mockStreamer{chunks: []string{"### Dream ", "Team"}}
	text, err := Collect(NewGenerator(s, "gpt-4o", nil).Stream(context.Background(), "briefing"))
	require.NoError(t, err)
	assert.Equal(t, "### Dream Team", text)

	require.NotNil(t, s.gotOpts.Temperature)
	assert.Equal(t, 0.4, *s.gotOpts.Temperature)
	require.Len(t, s.gotMsgs, 2)
	assert.Contains(t, s.gotMsgs[0].Content, "Dream Team Report")
	assert.Equal(t, "briefing", s.gotMsgs[1].Content)
}

func TestStream_ErrorIsLastChunk(t *testing.T) {
	s := &mockStreamer{chunks: []string{"partial"}, err: errors.New("provider down")}
	text, err := Collect(NewGenerator(s, "m", nil).Stream(context.Background(), "b"))
	assert.Equal(t, "partial", text)
	assert.EqualError(t, err, "provider down")
}

func TestStream_CancelStopsProducer(t *testing.T) {
	chunks := make([]string, 100)
	for i := range chunks {
		chunks[i] = "x"
	}
	s := &mockStreamer{chunks: chunks}
	ctx, cancel := context.WithCancel(context.Background())

	ch := NewGenerator(s, "m", nil).Stream(ctx, "b")
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}
