// Copyright 2024-2026 Aiku AI

package telegram

import (
	"bytes"
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/tg"

	"github.com/aiku/telegram-relay/pkg/relay"
)

// Download streams an attachment's bytes into memory.
func (c *Client) Download(ctx context.Context, media *relay.Media) ([]byte, error) {
	var buf bytes.Buffer
	switch ref := media.Ref.(type) {
	case *tg.Photo:
		loc := &tg.InputPhotoFileLocation{
			ID:            ref.ID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
			ThumbSize:     largestPhotoSize(ref),
		}
		if _, err := c.downloader.Download(c.api, loc).Stream(ctx, &buf); err != nil {
			return nil, errors.Wrap(err, "download photo")
		}
	case *tg.Document:
		if _, err := c.downloader.Download(c.api, ref.AsInputDocumentFileLocation()).Stream(ctx, &buf); err != nil {
			return nil, errors.Wrap(err, "download document")
		}
	default:
		return nil, errors.Errorf("unsupported media ref %T", media.Ref)
	}
	return buf.Bytes(), nil
}

// largestPhotoSize picks the thumb type of the largest real size.
// Telegram orders sizes ascending; stripped/path pseudo-sizes are only
// used when nothing else is present.
func largestPhotoSize(photo *tg.Photo) string {
	thumb := ""
	for _, size := range photo.Sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			thumb = s.Type
		case *tg.PhotoSizeProgressive:
			thumb = s.Type
		case *tg.PhotoStrippedSize:
			if thumb == "" {
				thumb = s.Type
			}
		}
	}
	if thumb == "" {
		thumb = "y"
	}
	return thumb
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to relay.Entity, text string) error {
	_, err := c.sender.To(inputPeer(to)).Text(ctx, text)
	return mapSendError(err)
}

// SendPhotoFile uploads the file at path and sends it as a photo.
func (c *Client) SendPhotoFile(ctx context.Context, to relay.Entity, path string, caption string) error {
	file, err := c.uploader.FromPath(ctx, path)
	if err != nil {
		return errors.Wrap(err, "upload from path")
	}
	return c.sendPhoto(ctx, to, file, caption)
}

// SendPhotoBytes uploads in-memory bytes and sends them as a photo.
// An empty filename falls back to a generic one.
func (c *Client) SendPhotoBytes(ctx context.Context, to relay.Entity, filename string, data []byte, caption string) error {
	if filename == "" {
		filename = "image.jpg"
	}
	file, err := c.uploader.FromBytes(ctx, filename, data)
	if err != nil {
		return errors.Wrap(err, "upload from bytes")
	}
	return c.sendPhoto(ctx, to, file, caption)
}

func (c *Client) sendPhoto(ctx context.Context, to relay.Entity, file tg.InputFileClass, caption string) error {
	var opts []styling.StyledTextOption
	if caption != "" {
		opts = append(opts, styling.Plain(caption))
	}
	_, err := c.sender.To(inputPeer(to)).Media(ctx, message.UploadedPhoto(file, opts...))
	return mapSendError(err)
}

// SendDocument uploads bytes and sends them as a document, preserving
// the original filename when given.
func (c *Client) SendDocument(ctx context.Context, to relay.Entity, filename string, data []byte, caption string) error {
	uploadName := filename
	if uploadName == "" {
		uploadName = "document"
	}
	file, err := c.uploader.FromBytes(ctx, uploadName, data)
	if err != nil {
		return errors.Wrap(err, "upload from bytes")
	}
	var opts []styling.StyledTextOption
	if caption != "" {
		opts = append(opts, styling.Plain(caption))
	}
	doc := message.UploadedDocument(file, opts...).ForceFile(true)
	if filename != "" {
		doc = doc.Filename(filename)
	}
	_, err = c.sender.To(inputPeer(to)).Media(ctx, doc)
	return mapSendError(err)
}

func inputPeer(to relay.Entity) tg.InputPeerClass {
	if p, ok := to.Handle.(tg.InputPeerClass); ok {
		return p
	}
	return &tg.InputPeerEmpty{}
}
