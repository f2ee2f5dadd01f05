// Package core holds the interfaces between the session engine and its
// external collaborators, plus the thread-safe room handle.
package core

import (
	"context"

	"github.com/dkeye/textworld/internal/domain"
)

// Generator is the language-generation backend. ok is false when no backend
// is configured or the call failed; callers must supply a fallback string.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, ok bool)
}

// Broadcaster delivers text to reply addresses, best effort. Per-recipient
// failures are logged and ignored, never fatal to a room.
type Broadcaster interface {
	Broadcast(addrs []domain.Address, text string)
}

// FileAttachment is the typed view of a file carried by an inbound message.
type FileAttachment struct {
	URL      string
	Filename string
}

// FileParser downloads an uploaded document and extracts its text.
type FileParser interface {
	ParseFile(ctx context.Context, url, filename string) (text string, err error)
}

// Inbound is one unit of input from the transport, tagged with the sender.
type Inbound struct {
	PlayerID domain.PlayerID
	Name     string
	Addr     domain.Address
	Text     string
	File     *FileAttachment
}
