// File: internal/notify/notify_test.go
package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

func sampleEvent() Event {
	return Event{
		Success:    true,
		Title:      "AnyRouter 签到",
		Target:     "https://anyrouter.top",
		Identity:   "user@e***le.com",
		Attempts:   1,
		Strategy:   "browser-login",
		StatusCode: 200,
		Channel:    "direct",
		Reason:     `field "success" is true`,
		Preview:    `{"success": true}`,
		Timestamp:  time.Now(),
	}
}

// stubChannel records sends and optionally fails.
type stubChannel struct {
	name  string
	err   error
	sends int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(context.Context, Event) error {
	s.sends++
	return s.err
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	failing := &stubChannel{name: "first", err: errors.New("boom")}
	working := &stubChannel{name: "second"}

	err := NewDispatcher(zap.NewNop(), failing, working).Dispatch(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotification)
	assert.Contains(t, err.Error(), "first")

	// The failure on the first channel must not stop the second.
	assert.Equal(t, 1, failing.sends)
	assert.Equal(t, 1, working.sends)
}

func TestDispatchWithoutChannels(t *testing.T) {
	err := NewDispatcher(zap.NewNop()).Dispatch(context.Background(), sampleEvent())
	assert.NoError(t, err)
}

func TestPushPlusSend(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
	}))
	defer srv.Close()

	ch := &PushPlus{Token: "tok-123", Endpoint: srv.URL, Client: srv.Client()}
	require.NoError(t, ch.Send(context.Background(), sampleEvent()))

	assert.Equal(t, "tok-123", payload["token"])
	assert.Equal(t, "AnyRouter 签到", payload["title"])
	assert.Equal(t, "html", payload["template"])
	assert.Contains(t, payload["content"], "成功")
}

func TestBarkSend(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
	}))
	defer srv.Close()

	ch := &Bark{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, ch.Send(context.Background(), sampleEvent()))

	assert.Equal(t, "AnyRouter 签到", payload["title"])
	assert.Contains(t, payload["body"], "[OK]")
}

func TestWebhookSendPostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	ch := &Webhook{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, ch.Send(context.Background(), sampleEvent()))
	assert.True(t, got.Success)
	assert.Equal(t, "browser-login", got.Strategy)
}

func TestChannelSendRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := &Webhook{URL: srv.URL, Client: srv.Client()}
	err := ch.Send(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestChannelsFromConfig(t *testing.T) {
	channels := ChannelsFromConfig(config.NotifyConfig{
		PushPlusToken: "tok",
		BarkURL:       "https://bark.example/key",
		WebhookURLs:   []string{"https://hook.example", ""},
	}, nil)

	require.Len(t, channels, 3)
	assert.Equal(t, "pushplus", channels[0].Name())
	assert.Equal(t, "bark", channels[1].Name())
	assert.Equal(t, "webhook", channels[2].Name())

	assert.Empty(t, ChannelsFromConfig(config.NotifyConfig{}, nil))
}

func TestPreviewPrettyPrintsJSON(t *testing.T) {
	out := Preview(`{"success":true,"msg":"已签到"}`, 500)
	assert.Contains(t, out, "\n")
	assert.Contains(t, out, "已签到")
}

func TestPreviewTruncatesWithMarker(t *testing.T) {
	body := strings.Repeat("a", 50)
	out := Preview(body, 10)

	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.Contains(t, out, "truncated")
	assert.Contains(t, out, "50 bytes total")
	assert.Contains(t, out, "limit 10")
}

func TestPreviewRespectsRuneBoundaries(t *testing.T) {
	body := strings.Repeat("签", 20) // 3 bytes per rune
	out := Preview(body, 10)

	cut := strings.SplitN(out, "\n", 2)[0]
	assert.True(t, utf8.ValidString(cut))
}

func TestPreviewDisabled(t *testing.T) {
	assert.Empty(t, Preview(`{"success":true}`, 0))
	assert.Empty(t, Preview("", 100))
}
