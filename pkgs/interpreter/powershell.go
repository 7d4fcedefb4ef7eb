package interpreter

import (
	"bytes"
	"encoding/base64"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/shellwords"
)

// isFlag reports whether tok is a '-' or '/' switch whose name is a prefix
// of full with at least least bytes.
func isFlag(tok, full string, least int) bool {
	if len(tok) < 2 || (tok[0] != '-' && tok[0] != '/') {
		return false
	}
	name := strings.ToLower(tok[1:])
	return len(name) >= least && strings.HasPrefix(full, name)
}

// isEncodedFlag matches -e, -ec, -en ... -encodedcommand
func isEncodedFlag(tok string) bool {
	return isFlag(tok, "encodedcommand", 1) || isFlag(tok, "ec", 2)
}

// isCommandFlag matches -c ... -command
func isCommandFlag(tok string) bool {
	return isFlag(tok, "command", 1)
}

// ParsePowerShell returns the script run by a powershell command line: the
// decoded argument of an -EncodedCommand abbreviation, the argument of a
// -Command abbreviation, or else the last word. Surrounding double quotes are
// removed. An empty result means there was nothing to extract.
func ParsePowerShell(command string) ([]byte, error) {
	words, err := shellwords.Split(command)
	if err != nil {
		return nil, errors.NewTokenizeError(command, err)
	}
	if len(words) == 0 {
		return nil, nil
	}

	var script []byte
	found := false
	for i, w := range words {
		if isEncodedFlag(w) {
			if i+1 >= len(words) {
				return nil, errors.NewArgumentError(command, "encoded command flag without a value")
			}
			decoded, err := DecodeEncodedCommand(words[i+1])
			if err != nil {
				return nil, errors.NewDecodeError(command, err)
			}
			script, found = decoded, true
			break
		}
		if isCommandFlag(w) {
			if i+1 >= len(words) {
				return nil, errors.NewArgumentError(command, "command flag without a value")
			}
			script, found = []byte(words[i+1]), true
			break
		}
	}
	if !found {
		script = []byte(words[len(words)-1])
	}
	return bytes.Trim(script, `"`), nil
}

// DecodeEncodedCommand decodes a base64 -EncodedCommand argument.
//
// Bytes outside the base64 alphabet are dropped and missing padding is
// tolerated. Payloads that look like UTF-16LE, which is what powershell
// expects, are transcoded to UTF-8; otherwise NUL bytes are removed.
func DecodeEncodedCommand(arg string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case 'A' <= r && r <= 'Z', 'a' <= r && r <= 'z', '0' <= r && r <= '9', r == '+', r == '/', r == '=':
			return r
		}
		return -1
	}, arg)

	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
		if err != nil {
			return nil, err
		}
	}

	if looksUTF16LE(raw) {
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(raw)
		if err == nil {
			return bytes.ReplaceAll(decoded, []byte{0}, nil), nil
		}
	}
	return bytes.ReplaceAll(raw, []byte{0}, nil), nil
}

// looksUTF16LE reports whether raw has even length and at least half of
// its high bytes are zero
func looksUTF16LE(raw []byte) bool {
	if len(raw) < 2 || len(raw)%2 != 0 {
		return false
	}
	zeros := 0
	for i := 1; i < len(raw); i += 2 {
		if raw[i] == 0 {
			zeros++
		}
	}
	return zeros*2 >= len(raw)/2
}
