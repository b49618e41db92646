// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telegram-relay/pkg/relay/ledger"
	"github.com/aiku/telegram-relay/pkg/relay/textfilter"
)

// sentRecord captures one send call for assertions.
type sentRecord struct {
	Kind     string // text, photo_file, photo_bytes, document
	Path     string
	Filename string
	Caption  string
	Data     []byte
	At       time.Time
}

// fakeNetwork is a scriptable relay.Network. Error queues are popped one
// entry per call; an exhausted queue means success.
type fakeNetwork struct {
	mu sync.Mutex

	entities   map[string]Entity
	resolveErr map[string]error

	downloadData []byte
	downloadErr  error
	warmErr      error

	textErrs       []error
	photoFileErrs  []error
	photoBytesErrs []error
	documentErrs   []error

	sent     []sentRecord
	handlers map[int64][]Handler
	warmed   int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		entities:   make(map[string]Entity),
		resolveErr: make(map[string]error),
		handlers:   make(map[int64][]Handler),
	}
}

func (n *fakeNetwork) addEntity(identifier string, e Entity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entities[identifier] = e
}

func (n *fakeNetwork) WarmCache(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warmed++
	return n.warmErr
}

func (n *fakeNetwork) Resolve(_ context.Context, identifier string) (Entity, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.resolveErr[identifier]; err != nil {
		return Entity{}, err
	}
	e, ok := n.entities[identifier]
	if !ok {
		return Entity{}, fmt.Errorf("entity %q not found", identifier)
	}
	return e, nil
}

func (n *fakeNetwork) Subscribe(sourceID int64, h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[sourceID] = append(n.handlers[sourceID], h)
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, sourceID)
	}
}

func (n *fakeNetwork) handlerCount(sourceID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers[sourceID])
}

func (n *fakeNetwork) Download(context.Context, *Media) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.downloadErr != nil {
		return nil, n.downloadErr
	}
	return n.downloadData, nil
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (n *fakeNetwork) record(rec sentRecord) {
	rec.At = time.Now()
	n.sent = append(n.sent, rec)
}

func (n *fakeNetwork) SendText(_ context.Context, _ Entity, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := popErr(&n.textErrs); err != nil {
		return err
	}
	n.record(sentRecord{Kind: "text", Caption: text})
	return nil
}

func (n *fakeNetwork) SendPhotoFile(_ context.Context, _ Entity, path string, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := popErr(&n.photoFileErrs); err != nil {
		return err
	}
	n.record(sentRecord{Kind: "photo_file", Path: path, Caption: caption})
	return nil
}

func (n *fakeNetwork) SendPhotoBytes(_ context.Context, _ Entity, filename string, data []byte, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := popErr(&n.photoBytesErrs); err != nil {
		return err
	}
	n.record(sentRecord{Kind: "photo_bytes", Filename: filename, Data: data, Caption: caption})
	return nil
}

func (n *fakeNetwork) SendDocument(_ context.Context, _ Entity, filename string, data []byte, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := popErr(&n.documentErrs); err != nil {
		return err
	}
	n.record(sentRecord{Kind: "document", Filename: filename, Data: data, Caption: caption})
	return nil
}

func (n *fakeNetwork) sentRecords() []sentRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := make([]sentRecord, len(n.sent))
	copy(cp, n.sent)
	return cp
}

func (n *fakeNetwork) sentKinds() []string {
	recs := n.sentRecords()
	kinds := make([]string, len(recs))
	for i, r := range recs {
		kinds[i] = r.Kind
	}
	return kinds
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	led := ledger.New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	t.Cleanup(led.Close)
	return led
}

// newTestForwarder builds a forwarder with pre-resolved endpoints so
// tests can drive handleMessage directly.
func newTestForwarder(t *testing.T, net Network, policy textfilter.Policy, delay time.Duration, media MediaPolicy) (*Forwarder, *ledger.Ledger) {
	t.Helper()
	led := newTestLedger(t)
	f := NewForwarder(net, led, Rule{
		Source:      "@src",
		Destination: "@dst",
		Policy:      policy,
		Delay:       delay,
	}, media, zerolog.Nop())
	f.src = Entity{ID: 1, Title: "Source"}
	f.dst = Entity{ID: 2, Title: "Destination"}
	f.running = true
	return f, led
}

func admitAll() textfilter.Policy {
	return textfilter.NewKeywords(nil)
}
