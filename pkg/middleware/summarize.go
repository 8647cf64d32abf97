package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/logger"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// SummaryMarker prefixes the synopsis message so repeated summarization
// composes instead of re-compressing already-summarized content.
const SummaryMarker = "[conversation summary]"

const summarizerPrompt = `Summarize the conversation below for use as context in a continuing chat.
Rules:
- Keep concrete facts, names, numbers, IDs and decisions.
- Keep unresolved questions and pending tasks.
- Drop greetings, filler and repeated content.
- Write plain prose, at most 200 words.`

// Summarization compresses the conversation prefix into one system
// synopsis message when the estimated token count exceeds the trigger.
type Summarization struct {
	Provider      llms.Provider
	TriggerTokens int
	KeepMessages  int
}

func NewSummarization(provider llms.Provider, triggerTokens, keepMessages int) *Summarization {
	return &Summarization{
		Provider:      provider,
		TriggerTokens: triggerTokens,
		KeepMessages:  keepMessages,
	}
}

func (m *Summarization) WrapModelCall(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error) {
	estimated := CountMessageTokens(req.Model, req.Messages)
	if estimated <= m.TriggerTokens || len(req.Messages) <= m.KeepMessages {
		return next(ctx, req)
	}

	keep := m.KeepMessages
	if keep < 0 {
		keep = 0
	}
	split := len(req.Messages) - keep
	prefix := req.Messages[:split]
	recent := req.Messages[split:]

	synopsis, err := m.summarize(ctx, req, prefix)
	if err != nil {
		// Summarization is best effort; an oversized context beats a
		// failed turn.
		logger.GetLogger().Warn("summarization failed, continuing unsummarized", "error", err)
		return next(ctx, req)
	}

	summaryMsg := protocol.CreateSystemMessage(SummaryMarker + "\n" + synopsis)
	messages := make([]protocol.Message, 0, 1+len(recent))
	messages = append(messages, summaryMsg)
	messages = append(messages, recent...)
	req.Messages = messages

	logger.GetLogger().Debug("summarized conversation prefix",
		"compressed", len(prefix), "kept", keep, "estimated_tokens", estimated)

	return next(ctx, req)
}

// summarize runs the short synopsis call. Existing summary messages in the
// prefix flow into the transcript, so a summary of a summary composes.
func (m *Summarization) summarize(ctx context.Context, req *llms.Request, prefix []protocol.Message) (string, error) {
	var transcript strings.Builder
	for _, msg := range prefix {
		text := msg.Text()
		if text == "" {
			continue
		}
		transcript.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, text))
	}

	system := protocol.CreateSystemMessage(summarizerPrompt)
	resp, err := m.Provider.Generate(ctx, &llms.Request{
		SystemMessage: &system,
		Messages:      []protocol.Message{protocol.CreateUserMessage(transcript.String())},
		Model:         req.Model,
		Temperature:   0,
		Timeout:       req.Timeout,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
