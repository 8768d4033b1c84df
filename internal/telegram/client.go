// Package telegram publishes thread posts and operator notices through the
// Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/dailythread/internal/logger"
	"github.com/rewired-gh/dailythread/internal/models"
	"github.com/rewired-gh/dailythread/internal/thread"
)

var errEmptyResponse = errors.New("telegram returned no messages")

// sender is the subset of *tgbotapi.BotAPI used to post messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// RunSource reports the last published run for the /status command.
type RunSource interface {
	LastPublished() (*models.Run, error)
}

// Client publishes threads to a single chat and answers bot commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	api            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	runs           RunSource
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase)
	c.bot = bot
	return c, nil
}

func newClient(api sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		api:            api,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// SetRunSource enables the /status command.
func (c *Client) SetRunSource(runs RunSource) {
	c.runs = runs
}

// Publish posts one thread payload, replying to replyTo when it is set, and
// returns the id of the new message. It implements thread.Publisher.
//
// A single photo, GIF or video is sent with the text as caption. Two or more
// photos are sent as an album captioned on its first item; the album's first
// message id is returned.
//
// A post is retried only when Telegram answered with flood control or a
// server error, which means it was not accepted. Transport failures may hide
// a post that did go live, so they end the thread instead of risking a
// duplicate reply.
func (c *Client) Publish(ctx context.Context, text string, media []thread.Media, replyTo string) (string, error) {
	replyID := 0
	if replyTo != "" {
		id, err := strconv.Atoi(replyTo)
		if err != nil {
			return "", fmt.Errorf("invalid reply target %q: %w", replyTo, err)
		}
		replyID = id
	}

	var id int
	err := c.withRetry(ctx, isRejected, func() error {
		var err error
		if len(media) > 1 {
			id, err = c.sendAlbum(text, media, replyID)
		} else {
			id, err = c.sendSingle(text, media, replyID)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	logger.Debug("Posted message %d (reply to %q, %d media)", id, replyTo, len(media))
	return strconv.Itoa(id), nil
}

func (c *Client) sendSingle(text string, media []thread.Media, replyID int) (int, error) {
	var msg tgbotapi.Chattable
	if len(media) == 0 {
		m := tgbotapi.NewMessage(c.chatID, text)
		m.ReplyToMessageID = replyID
		msg = m
	} else {
		file := requestFile(media[0].Ref)
		switch media[0].Kind {
		case thread.GIF:
			m := tgbotapi.NewAnimation(c.chatID, file)
			m.Caption = text
			m.ReplyToMessageID = replyID
			msg = m
		case thread.Video:
			m := tgbotapi.NewVideo(c.chatID, file)
			m.Caption = text
			m.ReplyToMessageID = replyID
			msg = m
		default:
			m := tgbotapi.NewPhoto(c.chatID, file)
			m.Caption = text
			m.ReplyToMessageID = replyID
			msg = m
		}
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) sendAlbum(text string, media []thread.Media, replyID int) (int, error) {
	items := make([]interface{}, 0, len(media))
	for i, m := range media {
		photo := tgbotapi.NewInputMediaPhoto(requestFile(m.Ref))
		if i == 0 {
			photo.Caption = text
		}
		items = append(items, photo)
	}
	group := tgbotapi.NewMediaGroup(c.chatID, items)
	group.ReplyToMessageID = replyID

	sent, err := c.api.SendMediaGroup(group)
	if err != nil {
		return 0, err
	}
	if len(sent) == 0 {
		return 0, errEmptyResponse
	}
	return sent[0].MessageID, nil
}

// requestFile maps a media reference to an upload: URLs are fetched by
// Telegram, anything else is read from disk.
func requestFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	return tgbotapi.FilePath(ref)
}

// isRejected reports whether Telegram refused the request with an error that
// is worth another attempt. The message was not posted in that case.
func isRejected(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
}

func anyError(error) bool { return true }

// withRetry runs send up to maxRetries times with linear backoff, stopping
// early on errors retryable does not accept. A flood-control wait longer than
// the backoff is honored.
func (c *Client) withRetry(ctx context.Context, retryable func(error) bool, send func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = send(); lastErr == nil {
			return nil
		}
		logger.Warn("Telegram send attempt %d/%d failed: %v", i+1, c.maxRetries, lastErr)
		if !retryable(lastErr) {
			return fmt.Errorf("not retried: %w", lastErr)
		}
		if i == c.maxRetries-1 {
			break
		}
		delay := c.retryDelayBase * time.Duration(i+1)
		var apiErr *tgbotapi.Error
		if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
			if wait := time.Duration(apiErr.RetryAfter) * time.Second; wait > delay {
				delay = wait
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		text = c.status()
	default:
		return
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

func (c *Client) status() string {
	if c.runs == nil {
		return "Status unavailable"
	}
	run, err := c.runs.LastPublished()
	if err != nil {
		return "Status unavailable: " + err.Error()
	}
	if run == nil {
		return "Nothing published yet"
	}
	return fmt.Sprintf("Last published: %s (%d posts, %s)",
		run.DataDate.Format("2006-01-02"), run.Posts, run.FinishedAt.Format(time.RFC3339))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry on any
// error. A repeated notice is harmless.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"
	return c.withRetry(ctx, anyError, func() error {
		_, err := c.api.Send(msg)
		return err
	})
}

// SendError sends a publication error notice.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Daily thread error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notice after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Daily thread recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
