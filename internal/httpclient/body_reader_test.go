package httpclient

import (
	"io"
	"testing"
)

func TestNewJSONBodySourceReplays(t *testing.T) {
	src, err := NewJSONBodySource(DivideRequest{Names: []string{"<山田>"}})
	if err != nil {
		t.Fatalf("NewJSONBodySource error = %v", err)
	}

	want := `{"names":["<山田>"]}`
	for i := 0; i < 2; i++ {
		r, err := src.NewReader()
		if err != nil {
			t.Fatalf("NewReader error = %v", err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll error = %v", err)
		}
		if string(got) != want {
			t.Fatalf("read %d: got %s, want %s", i, got, want)
		}
	}

	if n, ok := src.ContentLength(); !ok || n != int64(len(want)) {
		t.Fatalf("ContentLength() = %d, %v; want %d", n, ok, len(want))
	}
}

func TestNewJSONBodySourceEncodeError(t *testing.T) {
	if _, err := NewJSONBodySource(make(chan int)); err == nil {
		t.Fatal("expected encode error for channel")
	}
}
