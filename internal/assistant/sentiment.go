package assistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
)

// SentimentResult is the label/score pair shown next to a user prompt.
type SentimentResult struct {
	Label string `json:"label"`
	Score string `json:"score"`
	// Source is "model" for a hosted classification, "lexicon" for the
	// offline fallback.
	Source string `json:"source"`
}

const sentimentPrompt = "Classify the sentiment of the user's message. " +
	"Reply with exactly one line: LABEL SCORE, where LABEL is POSITIVE, " +
	"NEGATIVE or NEUTRAL and SCORE is a confidence between 0.00 and 1.00. " +
	"No other text."

// Sentiment classifies text via the chat model, falling back to a small
// lexicon heuristic when the hosted call fails or returns garbage. It never
// returns an error: sentiment is decorative and must not fail a chat turn.
func (c *Client) Sentiment(ctx context.Context, text string) SentimentResult {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return SentimentResult{Label: "NEUTRAL", Score: "0.00", Source: "lexicon"}
	}
	if len(cleaned) > 512 {
		cleaned = cleaned[:512]
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(sentimentPrompt),
			openai.UserMessage(cleaned),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		c.metrics.IncProviderError("sentiment")
		c.log.Warn().Err(err).Msg("sentiment model unavailable, using lexicon fallback")
		return lexiconSentiment(cleaned)
	}
	if len(resp.Choices) == 0 {
		return lexiconSentiment(cleaned)
	}

	result, err := parseSentiment(resp.Choices[0].Message.Content)
	if err != nil {
		c.log.Warn().Err(err).Msg("unparseable sentiment reply, using lexicon fallback")
		return lexiconSentiment(cleaned)
	}
	return result
}

func parseSentiment(reply string) (SentimentResult, error) {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(reply)))
	if len(fields) != 2 {
		return SentimentResult{}, fmt.Errorf("expected \"LABEL SCORE\", got %q", reply)
	}
	label := fields[0]
	switch label {
	case "POSITIVE", "NEGATIVE", "NEUTRAL":
	default:
		return SentimentResult{}, fmt.Errorf("unknown label %q", label)
	}
	score, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || score < 0 || score > 1 {
		return SentimentResult{}, fmt.Errorf("bad score %q", fields[1])
	}
	return SentimentResult{
		Label:  label,
		Score:  fmt.Sprintf("%.2f", score),
		Source: "model",
	}, nil
}

var (
	positiveWords = map[string]bool{
		"great": true, "good": true, "awesome": true,
		"happy": true, "love": true, "excellent": true,
	}
	negativeWords = map[string]bool{
		"bad": true, "sad": true, "angry": true,
		"hate": true, "terrible": true, "upset": true,
	}
)

func lexiconSentiment(text string) SentimentResult {
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:\"'")
		if positiveWords[token] {
			return SentimentResult{Label: "POSITIVE", Score: "0.55", Source: "lexicon"}
		}
		if negativeWords[token] {
			return SentimentResult{Label: "NEGATIVE", Score: "0.55", Source: "lexicon"}
		}
	}
	return SentimentResult{Label: "NEUTRAL", Score: "0.50", Source: "lexicon"}
}
