// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/session"
)

// buildSessionStorage prefers an imported Telethon string session over a
// file-backed session maintained by the relay itself.
func buildSessionStorage(opts Options) (session.Storage, error) {
	if opts.SessionString != "" {
		data, err := session.TelethonSession(opts.SessionString)
		if err != nil {
			return nil, errors.Wrap(err, "decode telethon session string")
		}
		storage := new(session.StorageMemory)
		loader := session.Loader{Storage: storage}
		if err := loader.Save(context.Background(), data); err != nil {
			return nil, errors.Wrap(err, "store session")
		}
		return storage, nil
	}
	path := opts.SessionFile
	if path == "" {
		path = "session.json"
	}
	return &session.FileStorage{Path: path}, nil
}
