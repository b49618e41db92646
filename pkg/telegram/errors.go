// Copyright 2024-2026 Aiku AI

package telegram

import (
	"fmt"

	"github.com/gotd/td/tgerr"

	"github.com/aiku/telegram-relay/pkg/relay"
)

// mapSendError translates transport errors into the relay's failure
// signals. Flood waits carry the signaled duration; destination policy
// denials and missing rights map to the relay sentinels so the fallback
// protocol can react. Anything else passes through unchanged.
func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &relay.RateLimitedError{RetryAfter: wait}
	}
	if tgerr.Is(err, "CHAT_FORWARDS_RESTRICTED", "CHAT_SEND_MEDIA_FORBIDDEN", "CHAT_SEND_PHOTOS_FORBIDDEN", "CHAT_SEND_DOCS_FORBIDDEN") {
		return fmt.Errorf("%w: %v", relay.ErrForwardRejected, err)
	}
	if tgerr.Is(err, "CHAT_WRITE_FORBIDDEN", "CHAT_ADMIN_REQUIRED", "CHANNEL_PRIVATE") {
		return fmt.Errorf("%w: %v", relay.ErrPermissionDenied, err)
	}
	return err
}
