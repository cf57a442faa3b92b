package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/malganisridhargoud/groqchat/internal/memory"
)

func TestParseSentiment(t *testing.T) {
	cases := []struct {
		reply   string
		want    SentimentResult
		wantErr bool
	}{
		{reply: "POSITIVE 0.97", want: SentimentResult{Label: "POSITIVE", Score: "0.97", Source: "model"}},
		{reply: "negative 0.6", want: SentimentResult{Label: "NEGATIVE", Score: "0.60", Source: "model"}},
		{reply: "  Neutral 0.5  ", want: SentimentResult{Label: "NEUTRAL", Score: "0.50", Source: "model"}},
		{reply: "POSITIVE", wantErr: true},
		{reply: "ECSTATIC 0.9", wantErr: true},
		{reply: "POSITIVE 1.5", wantErr: true},
		{reply: "The sentiment is positive overall", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseSentiment(tc.reply)
		if tc.wantErr {
			require.Error(t, err, "reply %q", tc.reply)
			continue
		}
		require.NoError(t, err, "reply %q", tc.reply)
		require.Equal(t, tc.want, got)
	}
}

func TestLexiconSentiment(t *testing.T) {
	require.Equal(t, "POSITIVE", lexiconSentiment("this is great!").Label)
	require.Equal(t, "NEGATIVE", lexiconSentiment("what a terrible day").Label)
	require.Equal(t, "NEUTRAL", lexiconSentiment("the sky is blue").Label)
}

func TestSentimentEmptyTextIsNeutral(t *testing.T) {
	c := New(Config{APIKey: "k", ChatModel: "m"}, zerolog.Nop(), nil)
	got := c.Sentiment(context.Background(), "   ")
	require.Equal(t, SentimentResult{Label: "NEUTRAL", Score: "0.00", Source: "lexicon"}, got)
}

func TestSentimentFallsBackWhenAPIUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	c := New(Config{APIKey: "k", BaseURL: ts.URL, ChatModel: "m"}, zerolog.Nop(), nil)
	got := c.Sentiment(context.Background(), "I love this")
	require.Equal(t, "POSITIVE", got.Label)
	require.Equal(t, "lexicon", got.Source)
}

func fakeCompletionServer(t *testing.T, reply string, capture *[][]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			var body struct {
				Messages []map[string]any `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*capture = append(*capture, body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "m",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": reply},
				},
			},
		})
	}))
}

func TestSentimentUsesModelReply(t *testing.T) {
	ts := fakeCompletionServer(t, "POSITIVE 0.91", nil)
	defer ts.Close()

	c := New(Config{APIKey: "k", BaseURL: ts.URL, ChatModel: "m"}, zerolog.Nop(), nil)
	got := c.Sentiment(context.Background(), "lovely weather today")
	require.Equal(t, SentimentResult{Label: "POSITIVE", Score: "0.91", Source: "model"}, got)
}

func TestChatReplaysContextWindow(t *testing.T) {
	var captured [][]map[string]any
	ts := fakeCompletionServer(t, "hello again", &captured)
	defer ts.Close()

	c := New(Config{APIKey: "k", BaseURL: ts.URL, ChatModel: "m"}, zerolog.Nop(), nil)
	history := []memory.Turn{
		{Role: memory.RoleUser, Content: "my name is Priya"},
		{Role: memory.RoleAssistant, Content: "nice to meet you, Priya"},
	}

	reply, err := c.Chat(context.Background(), history, "what is my name?")
	require.NoError(t, err)
	require.Equal(t, "hello again", reply)

	require.Len(t, captured, 1)
	msgs := captured[0]
	// system + 2 history turns + prompt
	require.Len(t, msgs, 4)
	require.Equal(t, "system", msgs[0]["role"])
	require.Equal(t, "user", msgs[1]["role"])
	require.Equal(t, "my name is Priya", msgs[1]["content"])
	require.Equal(t, "assistant", msgs[2]["role"])
	require.Equal(t, "user", msgs[3]["role"])
	require.Equal(t, "what is my name?", msgs[3]["content"])
}
