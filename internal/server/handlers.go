// Package server exposes the FRU codec over HTTP for provisioning tools
// that cannot link the library directly.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"example.com/frugate/internal/fru"
	"example.com/frugate/internal/frutoml"
	"example.com/frugate/internal/fruyaml"
	"example.com/frugate/internal/report"
)

// Server handles FRU conversion requests. Conversion direction follows the
// request body: an image (first byte 0x01, the format version) converts to
// text, anything else parses as text and converts to an image.
type Server struct {
	workDir string
	maxBody int64
	log     fru.Logger
}

// Options configures server creation.
type Options struct {
	StorageDir string
	MaxBody    int64
	Log        fru.Logger
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "frud-")
	if err != nil {
		return nil, err
	}
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	log := opts.Log
	if log == nil {
		log = fru.NopLogger()
	}
	return &Server{workDir: workDir, maxBody: maxBody, log: log}, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	body, format, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	var out []byte
	var contentType string
	if isImage(body) {
		dec := fru.Decoder{Log: s.log}
		doc, err := dec.Decode(body)
		if err != nil {
			writeConvertError(w, err)
			return
		}
		if format == "yaml" {
			out, err = fruyaml.Marshal(doc)
			contentType = "application/yaml"
		} else {
			out, err = frutoml.Marshal(doc)
			contentType = "text/plain; charset=utf-8"
		}
		if err != nil {
			writeConvertError(w, err)
			return
		}
	} else {
		doc, err := parseText(body, format)
		if err != nil {
			writeConvertError(w, err)
			return
		}
		enc := fru.Encoder{Log: s.log}
		out, err = enc.Encode(doc)
		if err != nil {
			writeConvertError(w, err)
			return
		}
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	body, format, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	var doc *fru.Document
	var err error
	if isImage(body) {
		dec := fru.Decoder{Log: s.log}
		doc, err = dec.Decode(body)
	} else {
		doc, err = parseText(body, format)
	}
	if err != nil {
		writeConvertError(w, err)
		return
	}

	f, err := os.CreateTemp(s.workDir, "inventory-*.pdf")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create report file")
		return
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)
	if err := report.SaveInventoryPDF(doc, path); err != nil {
		writeError(w, http.StatusInternalServerError, "render report: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readRequest validates the method and format parameter and reads a bounded
// request body.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, "", false
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "toml"
	}
	if format != "toml" && format != "yaml" {
		writeError(w, http.StatusBadRequest, "format must be toml or yaml")
		return nil, "", false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, "", false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return nil, "", false
	}
	return body, format, true
}

// isImage sniffs the conversion direction: binary images start with the
// format version byte 0x01, which no text document can.
func isImage(body []byte) bool {
	return len(body) > 0 && body[0] == 0x01
}

func parseText(body []byte, format string) (*fru.Document, error) {
	if format == "yaml" {
		return fruyaml.Unmarshal(body)
	}
	return frutoml.Unmarshal(body)
}

func writeConvertError(w http.ResponseWriter, err error) {
	switch {
	case fru.IsDecodeError(err), fru.IsEncodeError(err),
		frutoml.IsParseError(err), fruyaml.IsParseError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
