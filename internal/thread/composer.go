// Package thread packs a header, footer, text lines and media attachments into
// an ordered chain of length-bounded posts and publishes them as a reply thread.
package thread

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidArgument = errors.New("invalid argument")

// PlaceholderText is the text of posts that only exist to carry leftover media.
const PlaceholderText = "Service tweet"

// Line is one text fragment of the thread. ForceNew starts a new post before it.
type Line struct {
	Text     string
	ForceNew bool
}

// Payload is one finalized post.
type Payload struct {
	Text  string
	Media []Media
}

// Composer accumulates thread content. It is not safe for concurrent use.
type Composer struct {
	limits Limits

	header       string
	repeatHeader bool
	footer       string
	repeatFooter bool

	// lines hold encoded text (line terminator included).
	lines []Line
	media []Media
}

// NewComposer returns an empty composer packing against limits.
func NewComposer(limits Limits) (*Composer, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Composer{limits: limits}, nil
}

// Limits returns the limits the composer was built with.
func (c *Composer) Limits() Limits { return c.limits }

// SetHeader sets the text opening the first post, or every post when repeat
// is true. An empty header removes it.
func (c *Composer) SetHeader(header string, repeat bool) error {
	if header == "" {
		c.header = ""
		c.repeatHeader = false
		return nil
	}
	if n := textLen(header); n > c.limits.HeaderMax {
		return fmt.Errorf("%w: header length %d exceeds %d", ErrInvalidArgument, n, c.limits.HeaderMax)
	}
	c.header = header + headerSeparator
	c.repeatHeader = repeat
	return nil
}

// SetFooter sets the text closing the last post, or every post when repeat
// is true. An empty footer removes it.
func (c *Composer) SetFooter(footer string, repeat bool) error {
	if footer == "" {
		c.footer = ""
		c.repeatFooter = false
		return nil
	}
	if n := textLen(footer); n > c.limits.FooterMax {
		return fmt.Errorf("%w: footer length %d exceeds %d", ErrInvalidArgument, n, c.limits.FooterMax)
	}
	c.footer = footerSeparator + footer
	c.repeatFooter = repeat
	return nil
}

// AddLine appends a line. The first line never forces a new post.
func (c *Composer) AddLine(text string, forceNew bool) error {
	if n := textLen(text); n > c.limits.LineMax() {
		return fmt.Errorf("%w: line length %d exceeds %d", ErrInvalidArgument, n, c.limits.LineMax())
	}
	if len(c.lines) == 0 {
		forceNew = false
	}
	c.lines = append(c.lines, Line{Text: text + lineTerminator, ForceNew: forceNew})
	return nil
}

// AddMedia appends an attachment.
func (c *Composer) AddMedia(ref string, kind MediaKind) {
	c.media = append(c.media, Media{Ref: ref, Kind: kind})
}

// Compose partitions the accumulated content into payloads. It does not
// modify the composer, so repeated calls return equal results.
func (c *Composer) Compose() []Payload {
	texts := c.packText()

	payloads := make([]Payload, 0, len(texts))
	next := 0
	for _, text := range texts {
		var batch []Media
		if next < len(c.media) {
			batch = nextBatch(c.media, next)
			next += len(batch)
		}
		payloads = append(payloads, Payload{Text: text, Media: batch})
	}
	for next < len(c.media) {
		batch := nextBatch(c.media, next)
		next += len(batch)
		payloads = append(payloads, Payload{Text: PlaceholderText, Media: batch})
	}
	return payloads
}

func (c *Composer) packText() []string {
	lines := c.lines
	if c.footer != "" && !c.repeatFooter {
		lines = make([]Line, 0, len(c.lines)+1)
		lines = append(lines, c.lines...)
		lines = append(lines, Line{Text: c.footer})
	}

	var texts []string
	var current strings.Builder
	open := false
	for _, line := range lines {
		if !open {
			c.seed(&current, len(texts))
			open = true
		}
		if line.ForceNew || !c.fits(current.String(), line.Text) {
			texts = append(texts, c.finalize(current.String()))
			current.Reset()
			c.seed(&current, len(texts))
		}
		current.WriteString(line.Text)
	}
	if open {
		texts = append(texts, c.finalize(current.String()))
	}
	return texts
}

func (c *Composer) seed(b *strings.Builder, postIndex int) {
	if c.header != "" && (postIndex == 0 || c.repeatHeader) {
		b.WriteString(c.header)
	}
}

func (c *Composer) fits(current, line string) bool {
	footerLen := 0
	if c.repeatFooter && c.footer != "" {
		footerLen = textLen(c.footer)
	}
	return textLen(current)+textLen(line)+footerLen <= c.limits.Total
}

func (c *Composer) finalize(text string) string {
	if c.repeatFooter && c.footer != "" {
		text += c.footer
	}
	return strings.TrimSpace(text)
}
