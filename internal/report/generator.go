package report

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kalambet/colab/internal/engine"
	"github.com/kalambet/colab/internal/metrics"
)

const reportTemperature = 0.4

const systemPrompt = `You are a recruiting assistant on a student project platform.
Write a "Dream Team Report" for the project leader from the briefing you are given.
The briefing describes the project and lists the best candidates for each role.

Guidelines:
- Introduce the top candidate for every role.
- Combine their skills, reliability and GitHub analysis into a short case for why they fit this project.
- Keep the tone professional and encouraging.
- Use Markdown headings and bold text for structure.
- When a role has no candidates, say so plainly.`

// Streamer is the streaming completion capability the Generator needs.
type Streamer interface {
	ChatStream(ctx context.Context, model string, messages []engine.Message, opts engine.ChatOptions, onChunk func(string) error) error
}

// Chunk is one piece of the streamed report. A Chunk with Err set is the
// last value sent before the channel closes.
type Chunk struct {
	Text string
	Err  error
}

// Generator writes narrative reports.
type Generator struct {
	engine  Streamer
	model   string
	metrics *metrics.Collector
}

func NewGenerator(s Streamer, model string, m *metrics.Collector) *Generator {
	return &Generator{engine: s, model: model, metrics: m}
}

// Messages returns the conversation sent for a briefing.
func Messages(briefing string) []engine.Message {
	return []engine.Message{
		{Role: engine.RoleSystem, Content: systemPrompt},
		{Role: engine.RoleUser, Content: briefing},
	}
}

var errStopped = errors.New("report consumer stopped")

// Stream generates the report in a goroutine. The channel closes when the
// model finishes, fails, or ctx is cancelled.
func (g *Generator) Stream(ctx context.Context, briefing string) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)
		started := time.Now()

		err := g.engine.ChatStream(ctx, g.model, Messages(briefing), engine.ChatOptions{
			Temperature: engine.Temperature(reportTemperature),
		}, func(s string) error {
			select {
			case out <- Chunk{Text: s}:
				return nil
			case <-ctx.Done():
				return errStopped
			}
		})

		switch {
		case err == nil:
			g.metrics.ObserveMatch("report", "ok", started)
		case errors.Is(err, errStopped) || ctx.Err() != nil:
			g.metrics.ObserveMatch("report", "cancelled", started)
		default:
			g.metrics.ObserveMatch("report", "error", started)
			g.metrics.CollaboratorFailed("report")
			select {
			case out <- Chunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Collect drains a stream into one string.
func Collect(ch <-chan Chunk) (string, error) {
	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			return b.String(), c.Err
		}
		b.WriteString(c.Text)
	}
	return b.String(), nil
}
