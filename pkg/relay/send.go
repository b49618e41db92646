// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// fallbackText is sent when a media message cannot be delivered in any
// richer form and its caption is empty.
const fallbackText = "Message with media"

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// send classifies the message and dispatches to the replacement or
// standard path. A destination-policy rejection on the standard path is
// always retried once as text-only before giving up.
func (f *Forwarder) send(ctx context.Context, msg *Message, caption string) error {
	if !hasMedia(msg) {
		return f.net.SendText(ctx, f.dst, caption)
	}

	hasCaption := msg.Caption != ""
	replace := f.media.AlwaysReplace || hasCaption || !f.media.CaptionedOnly
	f.log.Debug().
		Int64("message_id", msg.ID).
		Stringer("media_kind", msg.Media.Kind).
		Bool("has_caption", hasCaption).
		Bool("replace", replace).
		Msg("Classified message")

	if replace {
		return f.sendReplacement(ctx, caption)
	}

	err := f.sendStandard(ctx, msg, caption)
	if errors.Is(err, ErrForwardRejected) {
		f.log.Warn().Err(err).Msg("Destination rejected media, retrying as text-only")
		return f.net.SendText(ctx, f.dst, caption)
	}
	return err
}

// sendStandard re-uploads the original media: download the bytes, infer
// image vs document, and send accordingly. Media download failure
// degrades to a text-only send.
func (f *Forwarder) sendStandard(ctx context.Context, msg *Message, caption string) error {
	data, err := f.net.Download(ctx, msg.Media)
	if err != nil {
		f.log.Error().Err(err).Msg("Failed to download media, sending as text-only")
		return f.net.SendText(ctx, f.dst, caption)
	}
	if isImage(msg.Media) {
		return f.sendImage(ctx, msg.Media, data, caption)
	}
	return f.sendDocument(ctx, msg.Media, data, caption)
}

// sendImage writes the bytes to a temporary file with a proper extension
// so the transport detects the type, then falls back to direct bytes and
// finally a minimal bytes send.
func (f *Forwarder) sendImage(ctx context.Context, media *Media, data []byte, caption string) error {
	ext := imageExtension(media)

	tmpPath, err := writeTemp(data, ext)
	if err == nil {
		defer os.Remove(tmpPath)
		if err = f.net.SendPhotoFile(ctx, f.dst, tmpPath, caption); err == nil {
			return nil
		}
		f.log.Warn().Err(err).Msg("Photo send from temp file failed, trying bytes")
	} else {
		f.log.Warn().Err(err).Msg("Failed to create temp file, trying bytes")
	}

	if err := f.net.SendPhotoBytes(ctx, f.dst, "image"+ext, data, caption); err == nil {
		return nil
	} else {
		f.log.Warn().Err(err).Msg("Photo send from bytes failed, trying minimal send")
	}

	return f.net.SendPhotoBytes(ctx, f.dst, "", data, caption)
}

// sendDocument preserves the original filename, retrying once without it
// if the full send fails.
func (f *Forwarder) sendDocument(ctx context.Context, media *Media, data []byte, caption string) error {
	name := media.Filename
	if name == "" {
		name = "document"
	}
	err := f.net.SendDocument(ctx, f.dst, name, data, caption)
	if err == nil {
		return nil
	}
	f.log.Warn().Err(err).Str("filename", name).Msg("Document send failed, trying simplified send")
	return f.net.SendDocument(ctx, f.dst, "", data, caption)
}

// sendReplacement substitutes the placeholder image for the original
// media, carrying the filtered caption. Tiers, each attempted only if the
// previous one failed: temp copy of the placeholder, the placeholder's
// own path, in-memory bytes, text-only. A missing placeholder degrades
// straight to text-only without raising.
func (f *Forwarder) sendReplacement(ctx context.Context, caption string) error {
	path := f.media.ReplacementImage
	if _, err := os.Stat(path); err != nil {
		f.log.Warn().Err(err).Str("path", path).Msg("Replacement image unavailable, sending text-only")
		return f.sendCaptionOnly(ctx, caption)
	}

	if err := f.sendFromTempCopy(ctx, path, caption); err == nil {
		return nil
	} else {
		f.log.Warn().Err(err).Msg("Temp copy send failed, trying direct path")
	}

	if err := f.net.SendPhotoFile(ctx, f.dst, path, caption); err == nil {
		return nil
	} else {
		f.log.Warn().Err(err).Msg("Direct path send failed, trying bytes")
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := f.net.SendPhotoBytes(ctx, f.dst, filepath.Base(path), data, caption); err == nil {
			return nil
		} else {
			f.log.Warn().Err(err).Msg("Bytes send failed, falling back to text-only")
		}
	} else {
		f.log.Warn().Err(err).Msg("Failed to read replacement image, falling back to text-only")
	}

	return f.sendCaptionOnly(ctx, caption)
}

// sendFromTempCopy sends the placeholder from a fresh temporary copy.
// The copy is removed on every exit path.
func (f *Forwarder) sendFromTempCopy(ctx context.Context, path, caption string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "relay-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return f.net.SendPhotoFile(ctx, f.dst, tmpPath, caption)
}

func (f *Forwarder) sendCaptionOnly(ctx context.Context, caption string) error {
	if caption == "" {
		caption = fallbackText
	}
	return f.net.SendText(ctx, f.dst, caption)
}

func writeTemp(data []byte, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "relay-*"+ext)
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(path)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// isImage reports whether media should be re-uploaded as a photo.
// Unresolvable types default to document handling.
func isImage(media *Media) bool {
	if media.Kind == MediaPhoto {
		return true
	}
	if strings.HasPrefix(media.MimeType, "image/") {
		return true
	}
	if media.Filename != "" {
		lower := strings.ToLower(media.Filename)
		for _, ext := range imageExtensions {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
	}
	return false
}

// imageExtension picks a file extension for the temp-file send, from the
// MIME type first, then the original filename, defaulting to .jpg.
func imageExtension(media *Media) string {
	switch media.MimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	if media.Filename != "" {
		lower := strings.ToLower(filepath.Ext(media.Filename))
		for _, ext := range imageExtensions {
			if lower == ext {
				return ext
			}
		}
	}
	return ".jpg"
}
