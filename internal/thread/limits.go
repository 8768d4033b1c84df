package thread

import (
	"fmt"
	"unicode/utf8"
)

// Separators added around header, footer and lines. Their combined length is
// the default SeparatorOverhead.
const (
	headerSeparator = "\n\n"
	footerSeparator = "\n"
	lineTerminator  = "\n"

	minSeparatorOverhead = len(headerSeparator) + len(footerSeparator) + len(lineTerminator)
)

// Limits are the platform length rules a Composer packs against. Lengths
// count Unicode code points.
type Limits struct {
	Total             int `mapstructure:"total"`
	HeaderMax         int `mapstructure:"header_max"`
	FooterMax         int `mapstructure:"footer_max"`
	SeparatorOverhead int `mapstructure:"separator_overhead"`
}

// DefaultLimits returns the limits of a 280 character post.
func DefaultLimits() Limits {
	return Limits{
		Total:             280,
		HeaderMax:         40,
		FooterMax:         40,
		SeparatorOverhead: minSeparatorOverhead,
	}
}

// LineMax is the longest line that always fits in a post together with a
// maximum-length header and footer.
func (l Limits) LineMax() int {
	return l.Total - l.HeaderMax - l.FooterMax - l.SeparatorOverhead
}

// Validate checks that the limits leave room for at least one character per
// line and cover the separators the composer inserts.
func (l Limits) Validate() error {
	if l.Total <= 0 {
		return fmt.Errorf("%w: total limit must be positive, got %d", ErrInvalidArgument, l.Total)
	}
	if l.HeaderMax < 0 || l.FooterMax < 0 || l.SeparatorOverhead < 0 {
		return fmt.Errorf("%w: header, footer and separator limits must not be negative", ErrInvalidArgument)
	}
	if l.SeparatorOverhead < minSeparatorOverhead {
		return fmt.Errorf("%w: separator overhead must be at least %d, got %d", ErrInvalidArgument, minSeparatorOverhead, l.SeparatorOverhead)
	}
	if l.LineMax() < 1 {
		return fmt.Errorf("%w: limits leave no room for lines (line max %d)", ErrInvalidArgument, l.LineMax())
	}
	return nil
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
