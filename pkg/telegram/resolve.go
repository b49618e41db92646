// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/query"

	"github.com/aiku/telegram-relay/pkg/relay"
)

// WarmCache iterates all dialogs once so later per-rule resolution hits
// the peer cache instead of issuing redundant round-trips.
func (c *Client) WarmCache(ctx context.Context) error {
	count := 0
	iter := query.GetDialogs(c.api).Iter()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "iterate dialogs")
	}
	c.log.Info().Int("dialogs", count).Msg("Dialog cache populated")
	return nil
}

// Resolve maps an identifier to a resolved entity. Accepted forms:
// numeric ID (-100-prefixed IDs denote channels, plain negative IDs
// denote basic groups), @handle, bare handle, and t.me links.
func (c *Client) Resolve(ctx context.Context, identifier string) (relay.Entity, error) {
	ident := strings.TrimSpace(identifier)
	if ident == "" {
		return relay.Entity{}, errors.New("empty identifier")
	}

	var (
		peer peers.Peer
		err  error
	)
	if id, numeric := parseNumericID(ident); numeric {
		peer, err = c.peers.ResolveTDLibID(ctx, constant.TDLibPeerID(id))
	} else {
		peer, err = c.peers.ResolveDomain(ctx, normalizeHandle(ident))
	}
	if err != nil {
		return relay.Entity{}, errors.Wrapf(err, "resolve %q", identifier)
	}
	return relay.Entity{
		Handle: peer.InputPeer(),
		ID:     peer.ID(),
		Title:  peer.VisibleName(),
	}, nil
}

func parseNumericID(ident string) (int64, bool) {
	id, err := strconv.ParseInt(ident, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// normalizeHandle reduces invite-link and @-handle forms to a bare
// username for domain resolution.
func normalizeHandle(ident string) string {
	switch {
	case strings.HasPrefix(ident, "https://t.me/"):
		ident = strings.TrimPrefix(ident, "https://t.me/")
	case strings.HasPrefix(ident, "http://t.me/"):
		ident = strings.TrimPrefix(ident, "http://t.me/")
	case strings.HasPrefix(ident, "t.me/"):
		ident = strings.TrimPrefix(ident, "t.me/")
	}
	if idx := strings.IndexByte(ident, '/'); idx >= 0 {
		ident = ident[:idx]
	}
	return strings.TrimPrefix(ident, "@")
}
