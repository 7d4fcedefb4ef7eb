// Package artifacts persists analysis output in a content-addressed
// directory. Every file is named after the first ten hex digits of the
// blake2b digest of its content, so re-analyzing a sample, or a sample that
// shares payloads with an earlier one, never duplicates a file.
package artifacts

import (
	"bytes"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aledsdavies/batchdeob/core/invariant"
	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/report"
)

// Kind tags a written artifact
type Kind int

const (
	KindDeobfuscated Kind = iota
	KindBatch
	KindScript
	KindReport
)

func (k Kind) String() string {
	switch k {
	case KindDeobfuscated:
		return "deobfuscated"
	case KindBatch:
		return "batch"
	case KindScript:
		return "script"
	case KindReport:
		return "report"
	}
	return "Unknown"
}

// Artifact is one file in the store
type Artifact struct {
	Kind Kind
	Path string
	// Existed is set when identical content was already stored
	Existed bool
}

// Store writes artifacts under a root directory
type Store struct {
	root   string
	perm   fs.FileMode
	logger *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithFileMode sets the permission of written files
func WithFileMode(perm fs.FileMode) Option {
	return func(s *Store) {
		s.perm = perm
	}
}

// Open creates root if needed and returns a Store over it
func Open(root string, opts ...Option) (*Store, error) {
	invariant.Precondition(root != "", "artifact root must not be empty")

	s := &Store{root: root, perm: 0o644}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrOutput, "cannot create artifact directory", err).
			WithContext("dir", root)
	}
	return s, nil
}

// Root is the store directory
func (s *Store) Root() string {
	return s.root
}

// Save writes the deobfuscated script of res as <digest>_deobfuscated.bat,
// then every child as <digest>.bat and every script as <digest>.ps1,
// recursively. The returned list is in write order.
func (s *Store) Save(res *engine.Result) ([]Artifact, error) {
	var written []Artifact
	text := []byte(res.Text())
	a, err := s.put(KindDeobfuscated, engine.Digest(text)[:10]+"_deobfuscated.bat", text)
	if err != nil {
		return written, err
	}
	written = append(written, a)
	return s.saveNested(res, written)
}

func (s *Store) saveNested(res *engine.Result, written []Artifact) ([]Artifact, error) {
	for _, c := range res.Children {
		a, err := s.put(KindBatch, c.Name(), []byte(c.Result.Text()))
		if err != nil {
			return written, err
		}
		written = append(written, a)
		if written, err = s.saveNested(c.Result, written); err != nil {
			return written, err
		}
	}
	for _, sc := range res.Scripts {
		a, err := s.put(KindScript, sc.Name(), sc.Body)
		if err != nil {
			return written, err
		}
		written = append(written, a)
	}
	return written, nil
}

// SaveReport writes doc in the given format next to the other artifacts
func (s *Store) SaveReport(doc *report.Document, format report.Format) (Artifact, error) {
	var buf bytes.Buffer
	if err := report.Write(&buf, doc, format); err != nil {
		return Artifact{}, err
	}
	ext := map[report.Format]string{
		report.FormatText: ".txt",
		report.FormatJSON: ".json",
		report.FormatYAML: ".yaml",
		report.FormatCBOR: ".cbor",
	}[format]
	name := engine.Digest(buf.Bytes())[:10] + "_report" + ext
	return s.put(KindReport, name, buf.Bytes())
}

func (s *Store) put(kind Kind, name string, data []byte) (Artifact, error) {
	path := filepath.Join(s.root, name)
	a := Artifact{Kind: kind, Path: path}

	if _, err := os.Stat(path); err == nil {
		a.Existed = true
		s.logger.Debug("artifact already stored", "kind", kind.String(), "path", path)
		return a, nil
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-"+name+"-*")
	if err != nil {
		return a, errors.Wrap(errors.ErrOutput, "cannot create artifact", err).WithContext("path", path)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp.Name(), s.perm)
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
		return a, errors.Wrap(errors.ErrOutput, "cannot write artifact", werr).WithContext("path", path)
	}
	s.logger.Debug("artifact written", "kind", kind.String(), "path", path, "bytes", len(data))
	return a, nil
}
