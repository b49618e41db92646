// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func placeholderFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replacement_image.png")
	if err := os.WriteFile(path, []byte("png-placeholder"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func replacementForwarder(t *testing.T, net *fakeNetwork, placeholder string) *Forwarder {
	t.Helper()
	f, _ := newTestForwarder(t, net, admitAll(), 0, MediaPolicy{
		ReplacementImage: placeholder,
		CaptionedOnly:    true,
	})
	return f
}

func TestReplacement_FirstTierSendsTempCopy(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	placeholder := placeholderFile(t)
	f := replacementForwarder(t, net, placeholder)

	if err := f.sendReplacement(context.Background(), "caption"); err != nil {
		t.Fatalf("sendReplacement: %v", err)
	}
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "photo_file" {
		t.Fatalf("expected photo_file send, got %v", net.sentKinds())
	}
	if recs[0].Path == placeholder {
		t.Error("first tier must send from a temporary copy, not the placeholder itself")
	}
	if _, err := os.Stat(recs[0].Path); !os.IsNotExist(err) {
		t.Errorf("temporary copy %s not cleaned up", recs[0].Path)
	}
}

func TestReplacement_TempCopyFailureFallsToDirectPath(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	placeholder := placeholderFile(t)
	net.photoFileErrs = []error{errors.New("temp tier failed")}
	f := replacementForwarder(t, net, placeholder)

	if err := f.sendReplacement(context.Background(), "caption"); err != nil {
		t.Fatalf("sendReplacement: %v", err)
	}
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "photo_file" || recs[0].Path != placeholder {
		t.Fatalf("expected direct-path send of %s, got %+v", placeholder, recs)
	}
}

func TestReplacement_PathFailuresFallToBytes(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	placeholder := placeholderFile(t)
	net.photoFileErrs = []error{errors.New("tier a"), errors.New("tier b")}
	f := replacementForwarder(t, net, placeholder)

	if err := f.sendReplacement(context.Background(), "caption"); err != nil {
		t.Fatalf("sendReplacement: %v", err)
	}
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "photo_bytes" {
		t.Fatalf("expected bytes send, got %v", net.sentKinds())
	}
	if string(recs[0].Data) != "png-placeholder" {
		t.Errorf("bytes tier sent %q, want placeholder contents", recs[0].Data)
	}
}

func TestReplacement_AllMediaTiersFailEndsInText(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	placeholder := placeholderFile(t)
	net.photoFileErrs = []error{errors.New("tier a"), errors.New("tier b")}
	net.photoBytesErrs = []error{errors.New("tier c")}
	f := replacementForwarder(t, net, placeholder)

	if err := f.sendReplacement(context.Background(), "caption"); err != nil {
		t.Fatalf("chain must terminate without raising, got %v", err)
	}
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "text" || recs[0].Caption != "caption" {
		t.Fatalf("expected text-only terminal send, got %+v", recs)
	}
}

func TestReplacement_MissingPlaceholderDegradesToText(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	f := replacementForwarder(t, net, filepath.Join(t.TempDir(), "does-not-exist.png"))

	if err := f.sendReplacement(context.Background(), ""); err != nil {
		t.Fatalf("missing placeholder must not raise, got %v", err)
	}
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "text" || recs[0].Caption != fallbackText {
		t.Fatalf("expected fallback text send, got %+v", recs)
	}
}

func TestClassify_CaptionedPhotoTakesReplacementPath(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	placeholder := placeholderFile(t)
	f, _ := newTestForwarder(t, net, admitAll(), 0, MediaPolicy{
		ReplacementImage: placeholder,
		CaptionedOnly:    true,
	})

	f.handleMessage(context.Background(), &Message{
		ID: 21, SourceID: 1,
		Caption: "promo caption",
		Media:   &Media{Kind: MediaPhoto},
	})
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "photo_file" {
		t.Fatalf("expected replacement photo send, got %v", net.sentKinds())
	}
	if recs[0].Path == placeholder {
		t.Error("replacement should go through the temp-copy tier first")
	}
	if recs[0].Caption != "promo caption" {
		t.Errorf("caption = %q, want filtered caption carried over", recs[0].Caption)
	}
}

func TestClassify_AlwaysReplaceCoversUncaptionedMedia(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	placeholder := placeholderFile(t)
	f, _ := newTestForwarder(t, net, admitAll(), 0, MediaPolicy{
		ReplacementImage: placeholder,
		CaptionedOnly:    true,
		AlwaysReplace:    true,
	})

	f.handleMessage(context.Background(), &Message{
		ID: 22, SourceID: 1,
		Media: &Media{Kind: MediaDocument, MimeType: "application/zip"},
	})
	recs := net.sentRecords()
	if len(recs) != 1 || recs[0].Kind != "photo_file" {
		t.Fatalf("always-replace should substitute media, got %v", net.sentKinds())
	}
}

func TestIsImage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		media Media
		want  bool
	}{
		{"photo kind", Media{Kind: MediaPhoto}, true},
		{"image mime", Media{Kind: MediaDocument, MimeType: "image/webp"}, true},
		{"image extension", Media{Kind: MediaDocument, Filename: "SHOT.PNG"}, true},
		{"pdf", Media{Kind: MediaDocument, MimeType: "application/pdf", Filename: "a.pdf"}, false},
		{"unknown type", Media{Kind: MediaDocument}, false},
	}
	for _, tc := range cases {
		if got := isImage(&tc.media); got != tc.want {
			t.Errorf("%s: isImage = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestImageExtension(t *testing.T) {
	t.Parallel()
	cases := []struct {
		media Media
		want  string
	}{
		{Media{MimeType: "image/png"}, ".png"},
		{Media{MimeType: "image/jpeg"}, ".jpg"},
		{Media{Filename: "photo.WEBP"}, ".webp"},
		{Media{}, ".jpg"},
	}
	for _, tc := range cases {
		if got := imageExtension(&tc.media); got != tc.want {
			t.Errorf("imageExtension(%+v) = %q, want %q", tc.media, got, tc.want)
		}
	}
}
