// Package report renders analysis results as a nested command tree or as
// structured documents (JSON, YAML, canonical CBOR).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/traits"
)

// Version of the document layout
const Version = 1

// Format selects the report encoding
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatYAML
	FormatCBOR
)

var formatNames = []string{"text", "json", "yaml", "cbor"}

// String returns the configuration name of the format
func (f Format) String() string {
	if f >= 0 && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Unknown(%d)", int(f))
}

// Formats lists the accepted format names
func Formats() []string {
	return append([]string(nil), formatNames...)
}

// ParseFormat resolves a format name, ignoring case
func ParseFormat(name string) (Format, bool) {
	for i, n := range formatNames {
		if strings.EqualFold(name, n) {
			return Format(i), true
		}
	}
	return FormatText, false
}

// Document is the serializable form of an engine.Result
type Document struct {
	Version     uint8             `json:"version" yaml:"version" cbor:"version"`
	Source      string            `json:"source,omitempty" yaml:"source,omitempty" cbor:"source,omitempty"`
	Digest      string            `json:"digest" yaml:"digest" cbor:"digest"`
	Commands    []string          `json:"commands" yaml:"commands" cbor:"commands"`
	Children    []ChildDocument   `json:"children,omitempty" yaml:"children,omitempty" cbor:"children,omitempty"`
	Scripts     []ScriptDocument  `json:"scripts,omitempty" yaml:"scripts,omitempty" cbor:"scripts,omitempty"`
	Present     []string          `json:"traits_present,omitempty" yaml:"traits_present,omitempty" cbor:"traits_present,omitempty"`
	Traits      traits.Record     `json:"traits" yaml:"traits" cbor:"traits"`
	Diagnostics []string          `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty" cbor:"diagnostics,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty" cbor:"error,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty" cbor:"env,omitempty"`
}

// ChildDocument is a nested batch payload
type ChildDocument struct {
	Parent  int       `json:"parent" yaml:"parent" cbor:"parent"`
	Command string    `json:"command" yaml:"command" cbor:"command"`
	File    string    `json:"file" yaml:"file" cbor:"file"`
	Report  *Document `json:"report" yaml:"report" cbor:"report"`
}

// ScriptDocument is an extracted script payload
type ScriptDocument struct {
	Parent  int    `json:"parent" yaml:"parent" cbor:"parent"`
	Command string `json:"command" yaml:"command" cbor:"command"`
	File    string `json:"file" yaml:"file" cbor:"file"`
	Digest  string `json:"digest" yaml:"digest" cbor:"digest"`
	Body    string `json:"body" yaml:"body" cbor:"body"`
}

// BuildOpt configures Build
type BuildOpt func(*builder)

type builder struct {
	source string
	env    bool
}

// WithSource names the analyzed input in the document
func WithSource(name string) BuildOpt {
	return func(b *builder) {
		b.source = name
	}
}

// WithEnv includes the final environment of every level
func WithEnv() BuildOpt {
	return func(b *builder) {
		b.env = true
	}
}

// Build converts a result into a Document. A hard analysis error, such as a
// depth breach, is carried in Error next to the partial result.
func Build(res *engine.Result, analysisErr error, opts ...BuildOpt) *Document {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	doc := b.build(res)
	doc.Source = b.source
	if analysisErr != nil {
		doc.Error = analysisErr.Error()
	}
	return doc
}

func (b *builder) build(res *engine.Result) *Document {
	doc := &Document{
		Version:  Version,
		Digest:   "blake2b:" + res.Digest(),
		Commands: append([]string{}, res.Commands...),
		Present:  res.Traits.Present(),
		Traits:   res.Traits,
	}
	for _, c := range res.Children {
		doc.Children = append(doc.Children, ChildDocument{
			Parent:  c.Parent,
			Command: c.Command,
			File:    c.Name(),
			Report:  b.build(c.Result),
		})
	}
	for _, s := range res.Scripts {
		doc.Scripts = append(doc.Scripts, ScriptDocument{
			Parent:  s.Parent,
			Command: s.Command,
			File:    s.Name(),
			Digest:  "blake2b:" + s.Digest,
			Body:    strings.ToValidUTF8(string(s.Body), "�"),
		})
	}
	for _, d := range res.Diagnostics {
		doc.Diagnostics = append(doc.Diagnostics, d.String())
	}
	if b.env {
		doc.Env = res.Env
	}
	return doc
}

// Write encodes doc in the given format. FormatText renders the command
// tree followed by the trait and diagnostic summary.
func Write(w io.Writer, doc *Document, format Format) error {
	var err error
	switch format {
	case FormatText:
		err = writeText(w, doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(doc); err == nil {
			err = enc.Close()
		}
	case FormatCBOR:
		var data []byte
		if data, err = MarshalCanonical(doc); err == nil {
			_, err = w.Write(data)
		}
	default:
		return errors.New(errors.ErrOutput, "unknown report format").WithContext("format", format.String())
	}
	if err != nil {
		return errors.Wrap(errors.ErrOutput, "cannot write "+format.String()+" report", err)
	}
	return nil
}

// MarshalCanonical encodes doc as canonical CBOR, so equal documents
// encode to equal bytes
func MarshalCanonical(doc *Document) ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	return encMode.Marshal(doc)
}

// UnmarshalCBOR decodes a document written by MarshalCanonical
func UnmarshalCBOR(data []byte) (*Document, error) {
	var doc Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func writeText(w io.Writer, doc *Document) error {
	var out strings.Builder
	if doc.Source != "" {
		fmt.Fprintf(&out, "# %s\n", doc.Source)
	}
	writeTree(&out, doc, "")
	if len(doc.Present) > 0 {
		out.WriteString("\n# traits: " + strings.Join(doc.Present, ", ") + "\n")
	}
	for _, d := range doc.Diagnostics {
		out.WriteString("# diagnostic: " + d + "\n")
	}
	if doc.Error != "" {
		out.WriteString("# error: " + doc.Error + "\n")
	}
	_, err := io.WriteString(w, out.String())
	return err
}

func writeTree(out *strings.Builder, doc *Document, tab string) {
	for i, command := range doc.Commands {
		out.WriteString(tab + command + "\n")
		var children []ChildDocument
		for _, c := range doc.Children {
			if c.Parent == i {
				children = append(children, c)
			}
		}
		if len(children) > 0 {
			out.WriteString(tab + "[CHILD CMD]\n")
			for _, c := range children {
				writeTree(out, c.Report, tab+"\t")
			}
			out.WriteString(tab + "[END OF CHILD CMD]\n")
		}
		for _, s := range doc.Scripts {
			if s.Parent == i {
				out.WriteString(tab + "[SCRIPT " + s.File + "]\n")
			}
		}
	}
}

// Tree renders the command tree of res with nested command lines indented
// one tab per level under [CHILD CMD] markers
func Tree(res *engine.Result) string {
	var out strings.Builder
	writeTree(&out, Build(res, nil), "")
	return out.String()
}
