package changefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
	err      error
	closed   bool
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	return srv.ClientURL()
}

func sampleEvent() *models.Event {
	start := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	return &models.Event{
		ID:         "ev-abc",
		Source:     models.ProvenanceLocal,
		StartTime:  &start,
		EventName:  "Gala <Primavera>",
		ArtistName: "Los Rayos",
		Venue:      "Sala Sol",
		City:       "Madrid",
	}
}

func TestFeedTopics(t *testing.T) {
	rec := &recordingPublisher{}
	feed := NewFeed(rec, "cal", nil)

	feed.EventChanged(context.Background(), ActionCreated, sampleEvent())
	feed.StatusChanged(context.Background(), ActionDeleted, &models.Status{ID: "st-1", Name: "Hold", Color: "#ff0"})

	assert.Equal(t, []string{"cal.event.created", "cal.status.deleted"}, rec.topics)
	ev, ok := rec.payloads[0].(*EventChanged)
	require.True(t, ok)
	assert.Equal(t, "ev-abc", ev.Event.ID)
	assert.False(t, ev.At.IsZero())
}

func TestFeedLogsPublishFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf), logging.WithLevel(logging.LevelWarn))
	feed := NewFeed(&recordingPublisher{err: errors.New("down")}, "", logger)

	feed.EventChanged(context.Background(), ActionUpdated, sampleEvent())

	assert.Contains(t, buf.String(), "change feed publish failed")
	assert.Contains(t, buf.String(), "stagecal.event.updated")
}

func TestFeedNilPublisher(t *testing.T) {
	feed := NewFeed(nil, "", nil)
	feed.EventChanged(context.Background(), ActionCreated, sampleEvent())
	assert.NoError(t, feed.Close())
}

func TestMultiPublisher(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("boom")}
	multi := MultiPublisher{failing, ok}

	err := multi.Publish(context.Background(), "t", 1)
	require.Error(t, err)
	assert.Equal(t, []string{"t"}, ok.topics, "later publishers still run")

	require.Error(t, multi.Close())
	assert.True(t, ok.closed)
}

func TestNATSPublisher(t *testing.T) {
	url := startTestNATS(t)

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("stagecal.event.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	feed := NewFeed(pub, "stagecal", nil)
	defer feed.Close()

	feed.EventChanged(context.Background(), ActionCreated, sampleEvent())

	select {
	case msg := <-msgs:
		assert.Equal(t, "stagecal.event.created", msg.Subject)
		var got EventChanged
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, ActionCreated, got.Action)
		assert.Equal(t, "Los Rayos", got.Event.ArtistName)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", nats.Timeout(200*time.Millisecond), nats.MaxReconnects(0))
	assert.Error(t, err)
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.MessageConfig
	err   error
	block chan struct{}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestTelegramPublisher(t *testing.T) {
	bot := &fakeSender{}
	pub := newTelegramPublisher(bot, 42, nil)

	require.NoError(t, pub.Publish(context.Background(), "stagecal.event.created",
		&EventChanged{Action: ActionCreated, Event: sampleEvent()}))
	require.NoError(t, pub.Close(), "close drains the queue")

	sent := bot.messages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "Event created")
	assert.Contains(t, msg.Text, "Gala &lt;Primavera&gt;")
	assert.Contains(t, msg.Text, "2026-03-14 20:00 @ Sala Sol, Madrid")

	assert.Error(t, pub.Publish(context.Background(), "x", &EventChanged{Action: ActionCreated, Event: sampleEvent()}))
	assert.NoError(t, pub.Close())
}

func TestTelegramPublisherSkipsEmpty(t *testing.T) {
	bot := &fakeSender{}
	pub := newTelegramPublisher(bot, 1, nil)

	require.NoError(t, pub.Publish(context.Background(), "x", &EventChanged{Action: ActionDeleted}))
	require.NoError(t, pub.Close())
	assert.Empty(t, bot.messages())
}

func TestTelegramPublisherDoesNotBlockRequests(t *testing.T) {
	bot := &fakeSender{block: make(chan struct{})}
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf), logging.WithLevel(logging.LevelWarn))
	pub := newTelegramPublisher(bot, 7, logger)
	feed := NewFeed(pub, "stagecal", logger)

	start := time.Now()
	for i := 0; i < telegramQueueSize+2; i++ {
		feed.EventChanged(context.Background(), ActionCreated, sampleEvent())
	}
	assert.Less(t, time.Since(start), time.Second, "a hung Telegram API must not stall publishers")
	assert.Contains(t, buf.String(), errTelegramQueueFull.Error())

	close(bot.block)
	require.NoError(t, pub.Close())
	assert.NotEmpty(t, bot.messages())
}

func TestTelegramPublisherLogsSendFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf), logging.WithLevel(logging.LevelWarn))
	pub := newTelegramPublisher(&fakeSender{err: errors.New("chat not found")}, 7, logger)

	require.NoError(t, pub.Publish(context.Background(), "x", &StatusChanged{Action: ActionCreated, Status: &models.Status{Name: "A"}}))
	require.NoError(t, pub.Close())
	assert.Contains(t, buf.String(), "telegram send failed")
	assert.Contains(t, buf.String(), "chat not found")
}

func TestFormatChangeStatus(t *testing.T) {
	text := formatChange("stagecal.status.updated", &StatusChanged{
		Action: ActionUpdated,
		Status: &models.Status{Name: "Confirmed", Color: "#00ff00"},
	})
	assert.True(t, strings.HasPrefix(text, "🏷 <b>Status updated</b>"))
	assert.Contains(t, text, "Confirmed <code>#00ff00</code>")
}

func TestNewTelegramPublisherValidates(t *testing.T) {
	_, err := NewTelegramPublisher(" ", 1, nil)
	assert.Error(t, err)
	_, err = NewTelegramPublisher("token", 0, nil)
	assert.Error(t, err)
}
