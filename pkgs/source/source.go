// Package source opens the scripts an analysis reads: files, standard
// input and zstd-compressed samples, and selects batch files in
// directories.
package source

import (
	"bufio"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/klauspost/compress/zstd"

	"github.com/aledsdavies/batchdeob/pkgs/errors"
)

// Stdin is the path that selects standard input
const Stdin = "-"

// DefaultPattern selects batch scripts
const DefaultPattern = "*.{bat,cmd}"

// zstdMagic starts every zstd frame
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Input is an opened script
type Input struct {
	Name string
	io.ReadCloser
}

// Open opens path, or stdin for "-", decompressing zstd transparently
func Open(path string, stdin io.Reader) (*Input, error) {
	if path == Stdin {
		rc, err := Decompress(stdin)
		if err != nil {
			return nil, err
		}
		return &Input{Name: "<stdin>", ReadCloser: rc}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewInputError("cannot open script", err).WithContext("path", path)
	}
	rc, err := Decompress(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Input{Name: path, ReadCloser: &stacked{ReadCloser: rc, under: f}}, nil
}

// Decompress returns r unchanged unless it starts with a zstd frame
func Decompress(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, errors.NewInputError("cannot read script", err)
	}
	if !bytes.Equal(head, zstdMagic) {
		return io.NopCloser(br), nil
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, errors.NewInputError("cannot start zstd decoder", err)
	}
	return dec.IOReadCloser(), nil
}

// stacked closes the decoder and then the file under it
type stacked struct {
	io.ReadCloser
	under io.Closer
}

func (s *stacked) Close() error {
	err := s.ReadCloser.Close()
	if uerr := s.under.Close(); err == nil {
		err = uerr
	}
	return err
}

// Filter selects file names by glob, ignoring case and a trailing .zst
type Filter struct {
	pattern string
	g       glob.Glob
}

// NewFilter compiles pattern; an empty pattern selects DefaultPattern
func NewFilter(pattern string) (*Filter, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, errors.NewConfigError("invalid file pattern", err).WithContext("pattern", pattern)
	}
	return &Filter{pattern: pattern, g: g}, nil
}

// String returns the pattern
func (f *Filter) String() string {
	return f.pattern
}

// Match reports whether the base name of path is selected
func (f *Filter) Match(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return f.g.Match(strings.TrimSuffix(name, ".zst"))
}

// Expand replaces every directory in paths with the selected files below
// it, sorted. Other paths, and "-", are kept as given.
func Expand(paths []string, filter *Filter) ([]string, error) {
	var out []string
	for _, p := range paths {
		if p == Stdin {
			out = append(out, p)
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.NewInputError("cannot stat input", err).WithContext("path", p)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filter.Match(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.NewInputError("cannot walk directory", err).WithContext("path", p)
		}
		slices.Sort(found)
		out = append(out, found...)
	}
	return out, nil
}
