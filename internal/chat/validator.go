package chat

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxTextBytes    = 4096 // max text payload size
	MaxTextChars    = 2000 // max character count
	MaxMediaURLLen  = 255  // matches the media_url column width
)

// ValidateContent checks a message's text and media reference. Text and
// media are each optional, but a message must carry at least one of them.
func ValidateContent(text, mediaURL string) error {
	if text == "" && mediaURL == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	if len(text) > MaxTextBytes {
		return fmt.Errorf("%w: text exceeds %d byte limit", ErrInvalidMessage, MaxTextBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("%w: text exceeds %d character limit", ErrInvalidMessage, MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text contains invalid UTF-8", ErrInvalidMessage)
	}
	if len(mediaURL) > MaxMediaURLLen {
		return fmt.Errorf("%w: media url exceeds %d byte limit", ErrInvalidMessage, MaxMediaURLLen)
	}
	return nil
}
