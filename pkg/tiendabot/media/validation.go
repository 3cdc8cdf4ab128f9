package media

import (
	"errors"
	"fmt"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
)

// ErrMediaTooLarge is returned when downloaded media exceeds its size limit.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// Limits caps the size of media accepted per kind. Zero disables a limit.
type Limits struct {
	MaxImageSize int64 `yaml:"max_image_size"`
	MaxMediaSize int64 `yaml:"max_media_size"`
}

// DefaultLimits returns 20MB for images and 64MB for everything else.
func DefaultLimits() Limits {
	return Limits{
		MaxImageSize: 20 * 1024 * 1024,
		MaxMediaSize: 64 * 1024 * 1024,
	}
}

// MaxSizeForKind returns the limit that applies to kind.
func (l Limits) MaxSizeForKind(kind channels.MessageType) int64 {
	if kind == channels.MessageImage {
		return l.MaxImageSize
	}
	return l.MaxMediaSize
}

// Validate checks a downloaded payload against the limits.
func (l Limits) Validate(d *Descriptor, size int) error {
	if size == 0 {
		return fmt.Errorf("empty %s payload", d.Kind)
	}
	if limit := l.MaxSizeForKind(d.Kind); limit > 0 && int64(size) > limit {
		return fmt.Errorf("%w: %s of %d bytes, limit %d", ErrMediaTooLarge, d.Kind, size, limit)
	}
	return nil
}
