package blobstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	if err := s.Write(ctx, "books/b1/splits/Answer_key/x_key.md", []byte("key")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := s.Read(ctx, "books/b1/splits/Answer_key/x_key.md")
	if err != nil || string(data) != "key" {
		t.Fatalf("Read = %q, %v", data, err)
	}

	ok, err := s.Exists(ctx, "books/b1/splits/Answer_key/x_key.md")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, err = s.Exists(ctx, "books/b1/splits")
	if err != nil || ok {
		t.Errorf("Exists(dir) = %v, %v; want false", ok, err)
	}

	if err := s.WriteFrom(ctx, "books/b1/original.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("WriteFrom: %v", err)
	}

	keys, err := s.List(ctx, "books/b1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"books/b1/original.pdf", "books/b1/splits/Answer_key/x_key.md"}
	if !slices.Equal(keys, want) {
		t.Errorf("List = %v, want %v", keys, want)
	}

	if err := s.Delete(ctx, "books/b1/splits"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(ctx, "books/b1/splits/Answer_key/x_key.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "books/b1/nope"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestFSListMissingPrefix(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	keys, err := s.List(context.Background(), "books/none")
	if err != nil || len(keys) != 0 {
		t.Errorf("List = %v, %v", keys, err)
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"a/b.md", "a/b.md", false},
		{"a/./b/../c.md", "a/c.md", false},
		{`a\b.md`, "a/b.md", false},
		{"", "", true},
		{"../escape", "", true},
		{"/etc/passwd", "", true},
		{"a/../../b", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.key)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("CleanKey(%q) err = %v, want ErrInvalidKey", tt.key, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("CleanKey(%q) = %q, %v; want %q", tt.key, got, err, tt.want)
		}
	}
}

func TestFSCanceledContext(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Write(ctx, "a.md", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Write err = %v, want context.Canceled", err)
	}
}
