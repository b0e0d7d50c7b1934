// Package kml reads KML documents and KMZ archives into named folders of placemarks.
package kml

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// DefaultMaxEntryBytes caps the size of a KML document read from disk or a KMZ entry.
const DefaultMaxEntryBytes int64 = 256 << 20

var zipMagic = []byte("PK\x03\x04")

// ReaderConfig configures how a document is opened. It is passed per call;
// the reader keeps no global state.
type ReaderConfig struct {
	MaxEntryBytes int64 // default DefaultMaxEntryBytes
}

func (c ReaderConfig) maxBytes() int64 {
	if c.MaxEntryBytes <= 0 {
		return DefaultMaxEntryBytes
	}
	return c.MaxEntryBytes
}

// Document is a parsed KML document flattened into folders.
type Document struct {
	Name    string
	Folders []Folder
}

// Folder is one named group of placemarks. Err is set when a placemark in
// the folder could not be parsed; such folders carry no placemarks.
type Folder struct {
	Name       string
	Path       string // slash-joined ancestor folder names, including Name
	Placemarks []Placemark
	Err        error
}

// Placemark is one KML feature.
type Placemark struct {
	Name        string
	Description string
	Data        []Data
	Geometry    geom.T // nil when the placemark has no geometry
}

// Data is one ExtendedData name/value pair, in document order.
type Data struct {
	Name  string
	Value string
}

// FormatError reports input that is not a readable KML or KMZ document.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("kml: %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Open reads a .kml file or a .kmz archive. The extension must be one of
// the two; the container itself is detected from the file content.
func Open(filePath string, cfg ReaderConfig) (*Document, error) {
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".kml", ".kmz":
	default:
		return nil, &FormatError{Path: filePath, Reason: fmt.Sprintf("unsupported extension %q", ext)}
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, &FormatError{Path: filePath, Reason: "open file", Err: err}
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, &FormatError{Path: filePath, Reason: "stat file", Err: err}
	}

	head := make([]byte, len(zipMagic))
	n, _ := io.ReadFull(f, head)
	if bytes.Equal(head[:n], zipMagic) {
		return openKMZ(filePath, f, info.Size(), cfg)
	}

	if info.Size() > cfg.maxBytes() {
		return nil, &FormatError{Path: filePath, Reason: fmt.Sprintf("document exceeds %d bytes", cfg.maxBytes())}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &FormatError{Path: filePath, Reason: "rewind file", Err: err}
	}

	doc, err := Decode(f)
	if err != nil {
		return nil, &FormatError{Path: filePath, Reason: "decode KML", Err: err}
	}
	return doc, nil
}

func openKMZ(filePath string, r io.ReaderAt, size int64, cfg ReaderConfig) (*Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &FormatError{Path: filePath, Reason: "open KMZ archive", Err: err}
	}

	entry := findKMLEntry(zr.File)
	if entry == nil {
		return nil, &FormatError{Path: filePath, Reason: "KMZ archive contains no .kml document"}
	}
	if int64(entry.UncompressedSize64) > cfg.maxBytes() {
		return nil, &FormatError{Path: filePath, Reason: fmt.Sprintf("KMZ entry %q exceeds %d bytes", entry.Name, cfg.maxBytes())}
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, &FormatError{Path: filePath, Reason: fmt.Sprintf("open KMZ entry %q", entry.Name), Err: err}
	}
	defer rc.Close() //nolint:errcheck

	zap.L().Debug("kml: reading KMZ entry",
		zap.String("path", filePath),
		zap.String("entry", entry.Name),
	)

	doc, err := Decode(io.LimitReader(rc, cfg.maxBytes()))
	if err != nil {
		return nil, &FormatError{Path: filePath, Reason: fmt.Sprintf("decode KMZ entry %q", entry.Name), Err: err}
	}
	return doc, nil
}

// findKMLEntry prefers a root-level doc.kml, then the first .kml entry in
// archive order.
func findKMLEntry(files []*zip.File) *zip.File {
	var first *zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(f.Name)
		if path.Ext(name) != ".kml" {
			continue
		}
		if name == "doc.kml" {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}
