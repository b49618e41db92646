// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entity is a resolved source or destination feed. Handle is the
// transport's opaque peer value and is only interpreted by the Network
// implementation that produced it.
type Entity struct {
	Handle any
	ID     int64
	Title  string
}

// MediaKind classifies message media for forwarding decisions.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaDocument
)

func (k MediaKind) String() string {
	switch k {
	case MediaPhoto:
		return "photo"
	case MediaDocument:
		return "document"
	default:
		return "none"
	}
}

// Media describes a message attachment. Ref is the transport handle
// passed back to Network.Download to fetch the bytes.
type Media struct {
	Kind     MediaKind
	MimeType string
	Filename string
	Ref      any
}

// Message is an inbound event delivered to a subscribed forwarder.
// Text is set for plain messages, Caption for media messages.
type Message struct {
	ID       int64
	SourceID int64
	Text     string
	Caption  string
	Media    *Media
}

// Handler consumes inbound messages for one subscribed source.
type Handler func(ctx context.Context, msg *Message)

// Network is the narrow surface of the messaging-network client consumed
// by the relay core. Implementations must be safe for concurrent use.
type Network interface {
	// WarmCache performs the one-time dialog/contact cache population
	// shared by all rules before any resolution begins.
	WarmCache(ctx context.Context) error
	// Resolve maps an identifier (numeric ID, @handle, bare handle, or
	// invite link) to an Entity.
	Resolve(ctx context.Context, identifier string) (Entity, error)
	// Subscribe registers a handler for new messages from the given
	// source. The returned function cancels the subscription.
	Subscribe(sourceID int64, h Handler) (cancel func())
	// Download fetches the bytes of a message attachment.
	Download(ctx context.Context, media *Media) ([]byte, error)

	SendText(ctx context.Context, to Entity, text string) error
	SendPhotoFile(ctx context.Context, to Entity, path string, caption string) error
	SendPhotoBytes(ctx context.Context, to Entity, filename string, data []byte, caption string) error
	SendDocument(ctx context.Context, to Entity, filename string, data []byte, caption string) error
}

// RateLimitedError is returned by send operations when the transport
// signals flood control. The caller sleeps RetryAfter and retries the
// same event; the message is never dropped.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by transport, retry after %s", e.RetryAfter)
}

var (
	// ErrForwardRejected signals that the destination's policy refused
	// the send (e.g. restricted media). The standard path retries once
	// via text-only send.
	ErrForwardRejected = errors.New("forward rejected by destination policy")
	// ErrPermissionDenied signals that the account lacks the rights to
	// post to the destination.
	ErrPermissionDenied = errors.New("permission denied")
)
