package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rewired-gh/dailythread/internal/logger"
)

var ErrPublicationFailure = errors.New("publication failed")

// Publisher sends one post and returns its platform identifier. An empty
// replyTo means the post starts the thread.
type Publisher interface {
	Publish(ctx context.Context, text string, media []Media, replyTo string) (string, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, text string, media []Media, replyTo string) (string, error)

func (f PublisherFunc) Publish(ctx context.Context, text string, media []Media, replyTo string) (string, error) {
	return f(ctx, text, media, replyTo)
}

// Published is a payload that went live.
type Published struct {
	Payload
	ID      string
	ReplyTo string
}

// PublicationError reports the payload that failed. Posts in Published stay
// live; nothing is rolled back.
type PublicationError struct {
	Index     int
	Total     int
	Published []Published
	Err       error
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("publish post %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *PublicationError) Unwrap() []error {
	return []error{ErrPublicationFailure, e.Err}
}

// Publish composes the thread and sends it.
func (c *Composer) Publish(ctx context.Context, pub Publisher) ([]Published, error) {
	return PublishAll(ctx, pub, c.Compose())
}

// PublishAll sends payloads in order, each replying to the one before it. It
// stops at the first failure and returns what was already published.
func PublishAll(ctx context.Context, pub Publisher, payloads []Payload) ([]Published, error) {
	published := make([]Published, 0, len(payloads))
	replyTo := ""
	for i, p := range payloads {
		fail := func(err error) ([]Published, error) {
			return published, &PublicationError{Index: i, Total: len(payloads), Published: published, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		id, err := pub.Publish(ctx, p.Text, p.Media, replyTo)
		if err != nil {
			return fail(err)
		}
		published = append(published, Published{Payload: p, ID: id, ReplyTo: replyTo})
		replyTo = id
	}
	return published, nil
}

// DryRunPublisher logs posts instead of sending them and hands out random ids.
type DryRunPublisher struct{}

func (DryRunPublisher) Publish(_ context.Context, text string, media []Media, replyTo string) (string, error) {
	id := uuid.NewString()
	refs := make([]string, len(media))
	for i, m := range media {
		refs[i] = m.Kind.String() + ":" + m.Ref
	}
	logger.Info("[dry-run] post %s (reply to %q, media %v):\n%s", id, replyTo, refs, text)
	return id, nil
}
