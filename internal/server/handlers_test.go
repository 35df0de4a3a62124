package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"example.com/frugate/internal/fru"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	s, err := NewServer(Options{StorageDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewRouter(s)
}

func post(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestConvertRoundTrip(t *testing.T) {
	h := newTestServer(t)

	text := "[board]\nlang = 0\nmanufacturer = p\"test\"\nproduct = \"Widget\"\nserial = \"B-77\"\n"
	rec := post(t, h, "/convert", []byte(text))
	if rec.Code != http.StatusOK {
		t.Fatalf("text to image: status %d: %s", rec.Code, rec.Body)
	}
	img := rec.Body.Bytes()
	if len(img) == 0 || img[0] != 0x01 {
		t.Fatalf("response is not a FRU image: % X", img)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = post(t, h, "/convert", img)
	if rec.Code != http.StatusOK {
		t.Fatalf("image to text: status %d: %s", rec.Code, rec.Body)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "manufacturer = p\"TEST\"") {
		t.Errorf("unexpected text output:\n%s", out)
	}
	if !strings.Contains(out, "serial = \"B-77\"") {
		t.Errorf("unexpected text output:\n%s", out)
	}
}

func TestConvertYAMLFormat(t *testing.T) {
	h := newTestServer(t)

	enc := fru.Encoder{}
	img, err := enc.Encode(&fru.Document{
		Board: &fru.BoardArea{Manufacturer: fru.Latin1Text("ACME Corp")},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rec := post(t, h, "/convert?format=yaml", img)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "board:") {
		t.Errorf("unexpected yaml output:\n%s", rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestConvertErrors(t *testing.T) {
	h := newTestServer(t)
	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"empty body", "/convert", "", http.StatusBadRequest},
		{"bad format", "/convert?format=xml", "x", http.StatusBadRequest},
		{"corrupt image", "/convert", "\x01\x00\x00\x00\x00\x00\x00\x00", http.StatusUnprocessableEntity},
		{"bad text", "/convert", "[rack]\n", http.StatusUnprocessableEntity},
		{"interior absent field", "/convert", "[board]\npartno = \"X\"\n", http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, h, tc.path, []byte(tc.body))
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body)
			}
		})
	}
}

func TestConvertMethodNotAllowed(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	h := newTestServer(t)
	text := "[product]\nlang = 0\nname = \"Widget\"\nserial = \"PS-9\"\n"
	rec := post(t, h, "/report", []byte(text))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("response is not a PDF")
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body)
	}
}
