package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/dailythread/internal/models"
	"github.com/rewired-gh/dailythread/internal/thread"
)

type fakeSender struct {
	sent   []tgbotapi.Chattable
	groups []tgbotapi.MediaGroupConfig
	nextID int
	fails  int
	// err is returned by failing calls; a 502 from the API when nil.
	err   error
	calls int
}

func (f *fakeSender) failure() error {
	if f.err != nil {
		return f.err
	}
	return &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.fails > 0 {
		f.fails--
		return tgbotapi.Message{}, f.failure()
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) SendMediaGroup(g tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.calls++
	if f.fails > 0 {
		f.fails--
		return nil, f.failure()
	}
	f.groups = append(f.groups, g)
	msgs := make([]tgbotapi.Message, len(g.Media))
	for i := range msgs {
		f.nextID++
		msgs[i] = tgbotapi.Message{MessageID: f.nextID}
	}
	return msgs, nil
}

func newTestClient(f *fakeSender) *Client {
	return newClient(f, 42, 3, time.Millisecond)
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"C:\\data\\x", "C:\\\\data\\\\x"},
		{"\\_", "\\\\\\_"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestPublishText(t *testing.T) {
	f := &fakeSender{}
	c := newTestClient(f)

	id, err := c.Publish(context.Background(), "hello", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	id, err = c.Publish(context.Background(), "world", nil, id)
	require.NoError(t, err)
	assert.Equal(t, "2", id)

	require.Len(t, f.sent, 2)
	first := f.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "hello", first.Text)
	assert.Equal(t, int64(42), first.ChatID)
	assert.Zero(t, first.ReplyToMessageID)
	assert.Empty(t, first.ParseMode)

	second := f.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, 1, second.ReplyToMessageID)
}

func TestPublishSingleMedia(t *testing.T) {
	tests := []struct {
		kind  thread.MediaKind
		check func(t *testing.T, c tgbotapi.Chattable)
	}{
		{thread.Photo, func(t *testing.T, c tgbotapi.Chattable) {
			m, ok := c.(tgbotapi.PhotoConfig)
			require.True(t, ok, "got %T", c)
			assert.Equal(t, "caption", m.Caption)
			assert.Equal(t, 7, m.ReplyToMessageID)
			assert.Equal(t, tgbotapi.FilePath("a.png"), m.File)
		}},
		{thread.GIF, func(t *testing.T, c tgbotapi.Chattable) {
			m, ok := c.(tgbotapi.AnimationConfig)
			require.True(t, ok, "got %T", c)
			assert.Equal(t, "caption", m.Caption)
		}},
		{thread.Video, func(t *testing.T, c tgbotapi.Chattable) {
			m, ok := c.(tgbotapi.VideoConfig)
			require.True(t, ok, "got %T", c)
			assert.Equal(t, "caption", m.Caption)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := &fakeSender{}
			_, err := newTestClient(f).Publish(context.Background(), "caption",
				[]thread.Media{{Ref: "a.png", Kind: tt.kind}}, "7")
			require.NoError(t, err)
			require.Len(t, f.sent, 1)
			tt.check(t, f.sent[0])
		})
	}
}

func TestPublishAlbum(t *testing.T) {
	f := &fakeSender{}
	media := []thread.Media{
		{Ref: "chart_0.png", Kind: thread.Photo},
		{Ref: "https://example.com/chart_1.png", Kind: thread.Photo},
		{Ref: "chart_2.png", Kind: thread.Photo},
	}

	id, err := newTestClient(f).Publish(context.Background(), "digest", media, "5")
	require.NoError(t, err)
	assert.Equal(t, "1", id, "album id is the first message id")

	require.Len(t, f.groups, 1)
	g := f.groups[0]
	assert.Equal(t, 5, g.ReplyToMessageID)
	require.Len(t, g.Media, 3)

	first := g.Media[0].(tgbotapi.InputMediaPhoto)
	assert.Equal(t, "digest", first.Caption)
	assert.Equal(t, tgbotapi.FilePath("chart_0.png"), first.Media)
	second := g.Media[1].(tgbotapi.InputMediaPhoto)
	assert.Empty(t, second.Caption)
	assert.Equal(t, tgbotapi.FileURL("https://example.com/chart_1.png"), second.Media)
}

func TestPublishRetries(t *testing.T) {
	f := &fakeSender{fails: 2}
	id, err := newTestClient(f).Publish(context.Background(), "hello", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	f = &fakeSender{fails: 3}
	_, err = newTestClient(f).Publish(context.Background(), "hello", nil, "")
	assert.Error(t, err)
	assert.Empty(t, f.sent)
}

func TestPublishRetriesFloodControl(t *testing.T) {
	f := &fakeSender{fails: 1, err: &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}}
	id, err := newTestClient(f).Publish(context.Background(), "hello", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, 2, f.calls)
}

func TestPublishDoesNotRetryUncertainFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		// the post may have gone live before the connection dropped
		{"transport error", errors.New("read tcp: connection reset by peer")},
		{"bad request", &tgbotapi.Error{Code: 400, Message: "Bad Request: message text is empty"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSender{fails: 1, err: tt.err}
			_, err := newTestClient(f).Publish(context.Background(), "hello", nil, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, f.calls, "a single attempt")
			assert.Empty(t, f.sent)
		})
	}
}

func TestNoticesRetryAnyError(t *testing.T) {
	f := &fakeSender{fails: 1, err: errors.New("connection reset")}
	require.NoError(t, newTestClient(f).SendRecovery(context.Background(), 1))
	assert.Equal(t, 2, f.calls)
	assert.Len(t, f.sent, 1)
}

func TestPublishInvalidReplyTo(t *testing.T) {
	f := &fakeSender{}
	_, err := newTestClient(f).Publish(context.Background(), "hello", nil, "abc")
	assert.Error(t, err)
	assert.Empty(t, f.sent)
}

func TestPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeSender{}
	_, err := newTestClient(f).Publish(ctx, "hello", nil, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.sent)
}

func TestPublishThreadChain(t *testing.T) {
	f := &fakeSender{}
	c, err := thread.NewComposer(thread.DefaultLimits())
	require.NoError(t, err)
	require.NoError(t, c.AddLine("one", false))
	require.NoError(t, c.AddLine("two", true))

	published, err := c.Publish(context.Background(), newTestClient(f))
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, published[0].ID, published[1].ReplyTo)
	assert.Equal(t, 1, f.sent[1].(tgbotapi.MessageConfig).ReplyToMessageID)
}

type fakeRuns struct {
	run *models.Run
	err error
}

func (f fakeRuns) LastPublished() (*models.Run, error) { return f.run, f.err }

func command(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 99},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}
}

func TestHandleCommand(t *testing.T) {
	date := time.Date(2020, 3, 2, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		cmd  string
		runs RunSource
		want string
	}{
		{"ping", "/ping", nil, "Pong"},
		{"status without source", "/status", nil, "Status unavailable"},
		{"status nothing published", "/status", fakeRuns{}, "Nothing published yet"},
		{"status error", "/status", fakeRuns{err: errors.New("db closed")}, "Status unavailable: db closed"},
		{
			"status published", "/status",
			fakeRuns{run: &models.Run{DataDate: date, FinishedAt: date.Add(time.Minute), Posts: 3}},
			"Last published: 2020-03-02 (3 posts, 2020-03-02T18:01:00Z)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSender{}
			c := newTestClient(f)
			if tt.runs != nil {
				c.SetRunSource(tt.runs)
			}
			c.handleCommand(command(tt.cmd))
			require.Len(t, f.sent, 1)
			msg := f.sent[0].(tgbotapi.MessageConfig)
			assert.Equal(t, int64(99), msg.ChatID)
			assert.Equal(t, tt.want, msg.Text)
		})
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	f := &fakeSender{}
	newTestClient(f).handleCommand(command("/nope"))
	assert.Empty(t, f.sent)
}

func TestSendErrorAndRecovery(t *testing.T) {
	f := &fakeSender{}
	c := newTestClient(f)
	require.NoError(t, c.SendError(context.Background(), errors.New("fetch failed: 503")))
	require.NoError(t, c.SendRecovery(context.Background(), 2))

	require.Len(t, f.sent, 2)
	errMsg := f.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "MarkdownV2", errMsg.ParseMode)
	assert.Contains(t, errMsg.Text, "fetch failed: 503")
	assert.Contains(t, f.sent[1].(tgbotapi.MessageConfig).Text, "after 2 consecutive")
}
