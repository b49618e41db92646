// Copyright 2024-2026 Aiku AI

// Package telegram implements relay.Network on top of the gotd/td MTProto
// client. It owns the single logical connection multiplexing inbound
// events for all subscribed sources.
package telegram

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/aiku/telegram-relay/pkg/relay"
)

// Options configures the Telegram client.
type Options struct {
	APIID   int
	APIHash string
	// SessionString is a Telethon-compatible string session. Takes
	// precedence over SessionFile when set.
	SessionString string
	SessionFile   string
	Logger        zerolog.Logger
}

// Auth states reported on the status surface.
const (
	AuthStatusConnecting    = "connecting"
	AuthStatusAuthenticated = "authenticated"
	AuthStatusUnauthorized  = "unauthorized"
)

// Client is the relay.Network implementation. All forwarders share one
// Client and therefore one connection.
type Client struct {
	opts   Options
	client *tgclient.Client
	log    zerolog.Logger

	api        *tg.Client
	peers      *peers.Manager
	sender     *message.Sender
	uploader   *uploader.Uploader
	downloader *downloader.Downloader

	mu         sync.RWMutex
	subs       map[int64][]subscription
	nextSubID  int
	authStatus string
}

var _ relay.Network = (*Client)(nil)

type subscription struct {
	id      int
	handler relay.Handler
}

// New builds the client. The connection is established by Run.
func New(opts Options) (*Client, error) {
	c := &Client{
		opts:       opts,
		log:        opts.Logger.With().Str("component", "tg_client").Logger(),
		subs:       make(map[int64][]subscription),
		authStatus: AuthStatusConnecting,
	}

	storage, err := buildSessionStorage(opts)
	if err != nil {
		return nil, errors.Wrap(err, "session storage")
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.dispatchUpdate(ctx, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.dispatchUpdate(ctx, u.Message)
		return nil
	})

	c.client = tgclient.NewClient(opts.APIID, opts.APIHash, tgclient.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
	})
	return c, nil
}

// Run connects, verifies authorization and invokes f with a live client.
// It blocks until f returns or the connection terminates.
func (c *Client) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}
		if !status.Authorized {
			c.setAuthStatus(AuthStatusUnauthorized)
			return errors.New("session is not authorized; provide a valid session string")
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}

		c.api = c.client.API()
		c.peers = peers.Options{}.Build(c.api)
		c.uploader = uploader.NewUploader(c.api)
		c.sender = message.NewSender(c.api).WithUploader(c.uploader)
		c.downloader = downloader.NewDownloader()
		c.setAuthStatus(AuthStatusAuthenticated)

		c.log.Info().
			Int64("user_id", self.ID).
			Str("first_name", self.FirstName).
			Msg("Logged in")

		return f(ctx)
	})
}

// AuthStatus reports the connection's auth state for the status surface.
func (c *Client) AuthStatus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authStatus
}

func (c *Client) setAuthStatus(s string) {
	c.mu.Lock()
	c.authStatus = s
	c.mu.Unlock()
}

// Subscribe registers h for new messages from sourceID. Handlers run as
// independent tasks per event; the returned cancel removes the registration.
func (c *Client) Subscribe(sourceID int64, h relay.Handler) (cancel func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[sourceID] = append(c.subs[sourceID], subscription{id: id, handler: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[sourceID]
		for i, s := range subs {
			if s.id == id {
				c.subs[sourceID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(c.subs[sourceID]) == 0 {
			delete(c.subs, sourceID)
		}
	}
}

// dispatchUpdate converts a raw update into a relay.Message and fans it
// out to the source's subscribers, one goroutine per handler.
func (c *Client) dispatchUpdate(ctx context.Context, raw tg.MessageClass) {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return
	}
	srcID := peerBareID(msg.PeerID)
	if srcID == 0 {
		return
	}

	c.mu.RLock()
	subs := append([]subscription(nil), c.subs[srcID]...)
	c.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	rm := convertMessage(msg, srcID)
	c.log.Debug().Int64("message_id", rm.ID).Int64("source_id", srcID).Msg("New message detected")
	for _, s := range subs {
		go s.handler(ctx, rm)
	}
}

func peerBareID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		return p.ChannelID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerUser:
		return p.UserID
	default:
		return 0
	}
}

// convertMessage maps a raw Telegram message onto the relay model. The
// raw message text doubles as the caption when media is attached.
func convertMessage(msg *tg.Message, srcID int64) *relay.Message {
	rm := &relay.Message{
		ID:       int64(msg.ID),
		SourceID: srcID,
	}
	if media := convertMedia(msg.Media); media != nil {
		rm.Media = media
		rm.Caption = msg.Message
	} else {
		rm.Text = msg.Message
	}
	return rm
}

func convertMedia(media tg.MessageMediaClass) *relay.Media {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.AsNotEmpty()
		if !ok {
			return nil
		}
		return &relay.Media{
			Kind:     relay.MediaPhoto,
			MimeType: "image/jpeg",
			Filename: "photo.jpg",
			Ref:      photo,
		}
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.AsNotEmpty()
		if !ok {
			return nil
		}
		md := &relay.Media{
			Kind:     relay.MediaDocument,
			MimeType: doc.MimeType,
			Ref:      doc,
		}
		for _, attr := range doc.Attributes {
			if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
				md.Filename = fn.FileName
				break
			}
		}
		return md
	default:
		return nil
	}
}
