package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/malganisridhargoud/groqchat/internal/assistant"
	"github.com/malganisridhargoud/groqchat/internal/config"
	"github.com/malganisridhargoud/groqchat/internal/identity"
	"github.com/malganisridhargoud/groqchat/internal/memory"
)

type fakeAssistant struct {
	reply    string
	chatErr  error
	lastHist []memory.Turn
}

func (f *fakeAssistant) Chat(_ context.Context, history []memory.Turn, _ string) (string, error) {
	f.lastHist = history
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeAssistant) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return "transcript of " + string(data), nil
}

func (f *fakeAssistant) Sentiment(_ context.Context, _ string) assistant.SentimentResult {
	return assistant.SentimentResult{Label: "NEUTRAL", Score: "0.50", Source: "lexicon"}
}

func (f *fakeAssistant) DescribeImage(_ context.Context, _ string, imageData []byte, _ string) (string, error) {
	if len(imageData) == 0 {
		return "", io.ErrUnexpectedEOF
	}
	return "an image", nil
}

func newTestServer(t *testing.T, brain *fakeAssistant) (*httptest.Server, *memory.Manager) {
	t.Helper()
	logger := zerolog.Nop()
	mgr := memory.NewManager(memory.NewInMemoryStore(), memory.NewInMemoryCache(), memory.Config{ContextWindow: 5}, logger, nil)
	ident := identity.NewService(identity.NewInMemoryUserStore(), logger)
	registry := identity.NewRegistry(time.Hour)

	cfg := config.Config{HistoryPageSize: 10, AllowAnyOrigin: true}
	srv := New(cfg, mgr, brain, ident, registry, nil, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestChatRecordsBothTurns(t *testing.T) {
	brain := &fakeAssistant{reply: "hi there"}
	ts, mgr := newTestServer(t, brain)

	resp := postJSON(t, ts.URL+"/v1/chat", chatRequest{SessionID: "s1", Message: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body chatResponse
	decodeBody(t, resp, &body)
	require.Equal(t, "hi there", body.Reply)
	require.True(t, body.Synced)
	require.Empty(t, body.Warning)
	require.Len(t, body.Turns, 2)
	require.Equal(t, memory.RoleUser, body.Turns[0].Role)
	require.Equal(t, memory.RoleAssistant, body.Turns[1].Role)
	require.Equal(t, int64(1), body.Turns[0].Sequence)
	require.Equal(t, int64(2), body.Turns[1].Sequence)

	turns, err := mgr.GetContext(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestChatHistoryExcludesCurrentPrompt(t *testing.T) {
	brain := &fakeAssistant{reply: "ok"}
	ts, _ := newTestServer(t, brain)

	resp := postJSON(t, ts.URL+"/v1/chat", chatRequest{SessionID: "s1", Message: "first"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Empty(t, brain.lastHist)

	resp = postJSON(t, ts.URL+"/v1/chat", chatRequest{SessionID: "s1", Message: "second"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	// The second call should replay first/ok but not "second" itself.
	require.Len(t, brain.lastHist, 2)
	require.Equal(t, "first", brain.lastHist[0].Content)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{reply: "x"})

	resp := postJSON(t, ts.URL+"/v1/chat", chatRequest{SessionID: "s1", Message: "   "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChatProviderFailureDoesNotRecordAssistantTurn(t *testing.T) {
	brain := &fakeAssistant{chatErr: io.ErrUnexpectedEOF}
	ts, mgr := newTestServer(t, brain)

	resp := postJSON(t, ts.URL+"/v1/chat", chatRequest{SessionID: "s1", Message: "hello"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	// The user turn is already persisted when the provider fails.
	turns, err := mgr.GetContext(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, memory.RoleUser, turns[0].Role)
}

func TestGetContextAndHistory(t *testing.T) {
	ts, mgr := newTestServer(t, &fakeAssistant{reply: "r"})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := mgr.RecordTurn(ctx, "s1", memory.RoleUser, "msg")
		require.NoError(t, err)
	}

	resp, err := http.Get(ts.URL + "/v1/context?session_id=s1&limit=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ctxBody struct {
		Turns []memory.Turn `json:"turns"`
	}
	decodeBody(t, resp, &ctxBody)
	require.Len(t, ctxBody.Turns, 2)
	require.Equal(t, int64(2), ctxBody.Turns[0].Sequence)
	require.Equal(t, int64(3), ctxBody.Turns[1].Sequence)

	resp, err = http.Get(ts.URL + "/v1/history?session_id=s1&page_size=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var histBody struct {
		Turns      []memory.Turn `json:"turns"`
		NextBefore int64         `json:"next_before"`
	}
	decodeBody(t, resp, &histBody)
	require.Len(t, histBody.Turns, 2)
	// History pages newest first.
	require.Equal(t, int64(3), histBody.Turns[0].Sequence)
	require.Equal(t, int64(2), histBody.NextBefore)
}

func TestGetContextRequiresSessionID(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{})

	resp, err := http.Get(ts.URL + "/v1/context")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryStoreOutageReturns503(t *testing.T) {
	logger := zerolog.Nop()
	// A manager with no durable tier cannot serve history.
	mgr := memory.NewManager(nil, memory.NewInMemoryCache(), memory.Config{ContextWindow: 5}, logger, nil)
	ident := identity.NewService(identity.NewInMemoryUserStore(), logger)
	srv := New(config.Config{HistoryPageSize: 10}, mgr, &fakeAssistant{}, ident, identity.NewRegistry(time.Hour), nil, logger)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/history?session_id=s1")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "5", resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestDeleteLastAndClearHistory(t *testing.T) {
	ts, mgr := newTestServer(t, &fakeAssistant{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := mgr.RecordTurn(ctx, "s1", memory.RoleUser, "msg")
		require.NoError(t, err)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/history/last?session_id=s1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	turns, err := mgr.GetContext(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/history?session_id=s1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	turns, err = mgr.GetContext(ctx, "s1", 0)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestRegisterLoginAndGuest(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{})

	resp := postJSON(t, ts.URL+"/v1/auth/register", credentialsRequest{Username: "priya", Password: "s3cret-pass"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var user userResponse
	decodeBody(t, resp, &user)
	require.Equal(t, "priya", user.Username)
	require.True(t, strings.HasPrefix(user.UserID, "user-"))

	resp = postJSON(t, ts.URL+"/v1/auth/register", credentialsRequest{Username: "priya", Password: "s3cret-pass"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/auth/login", credentialsRequest{Username: "priya", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/auth/login", credentialsRequest{Username: "priya", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Post(ts.URL+"/v1/sessions/guest", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var guest struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, resp, &guest)
	require.True(t, strings.HasPrefix(guest.SessionID, "guest-"))
}

func TestReadyReportsTierStatus(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{})

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		DurableStore     string `json:"durable_store"`
		HotCache         string `json:"hot_cache"`
		UnconfirmedTurns int    `json:"unconfirmed_turns"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, "connected", body.DurableStore)
	require.Equal(t, "connected", body.HotCache)
	require.Zero(t, body.UnconfirmedTurns)
}

func TestTranscribeMultipart(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "note.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte("RIFFdata"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/v1/voice/transcribe", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Text string `json:"text"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, "transcript of RIFFdata", body.Text)
}

func TestTranscribeRequiresAudioField(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "not a file"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/v1/voice/transcribe", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChatWebSocketRoundTrip(t *testing.T) {
	ts, mgr := newTestServer(t, &fakeAssistant{reply: "pong"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "message", SessionID: "s1", Text: "ping"}))
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, "reply", out.Type)
	require.Equal(t, "pong", out.Reply)
	require.True(t, out.Synced)
	require.NotNil(t, out.Sentiment)

	turns, err := mgr.GetContext(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestChatWebSocketRejectsUnknownFrame(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAssistant{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "subscribe"}))
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, "error", out.Type)
}
