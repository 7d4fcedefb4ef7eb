package interpreter

import "strings"

// cmd mode switches that must be followed by whitespace
const cmdSwitches = "AUQDaudq"

// cmd switches taking :ON or :OFF
const cmdToggles = "EFVefv"

// ParseCmd extracts the command line run by `cmd [switches] /c|/r text`.
// The name may be spelled cmd.exe. Surrounding double quotes are removed
// from the extracted text. ok is false when there is no /c or /r switch.
func ParseCmd(command string) (child string, ok bool) {
	i, ok := program(command, "cmd")
	if !ok {
		return "", false
	}
	i = skipSpaces(command, i)

	for {
		if j, ok := cmdSwitch(command, i); ok {
			i = j
			continue
		}
		break
	}

	if i+1 >= len(command) || command[i] != '/' {
		return "", false
	}
	switch command[i+1] {
	case 'c', 'C', 'r', 'R':
	default:
		return "", false
	}
	i = skipSpaces(command, i+2)
	return strings.Trim(command[i:], `"`), true
}

// cmdSwitch consumes one of /A /U /Q /D plus whitespace, or /E:ON-style
// toggles plus optional whitespace.
func cmdSwitch(s string, i int) (int, bool) {
	if i+1 >= len(s) || s[i] != '/' {
		return i, false
	}
	c := s[i+1]
	if strings.IndexByte(cmdSwitches, c) >= 0 {
		j := skipSpaces(s, i+2)
		return j, j > i+2
	}
	if strings.IndexByte(cmdToggles, c) >= 0 && i+2 < len(s) && s[i+2] == ':' {
		for _, v := range []string{"on", "off"} {
			if j, ok := fold(s, i+3, v); ok {
				return skipSpaces(s, j), true
			}
		}
	}
	return i, false
}

// startFlags are the start switches without an argument, longest first
// where one is a prefix of another
var startFlags = []string{
	"min", "max", "wait", "low", "normal", "abovenormal", "belownormal",
	"high", "realtime", "separate", "shared", "b", "i", "w",
}

// startValueFlags take one argument
var startValueFlags = []string{"node", "affinity", "d"}

// ParseStart returns the command launched by `start [title] [switches]
// command`. The name may be spelled start.exe. A single quoted window title
// and any switches are skipped. ok is false when command is not a start
// invocation.
func ParseStart(command string) (rest string, ok bool) {
	i, ok := program(command, "start")
	if !ok {
		return "", false
	}

	titled := false
	for i < len(command) {
		switch c := command[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '"' && !titled:
			titled = true
			i = skipQuoted(command, i)
		case c == '/':
			j, ok := startSwitch(command, i+1)
			if !ok {
				return command[i:], true
			}
			i = j
		default:
			return command[i:], true
		}
	}
	return "", true
}

func startSwitch(s string, i int) (int, bool) {
	for _, f := range startValueFlags {
		if j, ok := fold(s, i, f); ok && switchEnd(s, j) {
			j = skipSpaces(s, j)
			if j < len(s) && s[j] == '"' {
				return skipQuoted(s, j), true
			}
			for j < len(s) && s[j] != ' ' && s[j] != '\t' {
				j++
			}
			return j, true
		}
	}
	for _, f := range startFlags {
		if j, ok := fold(s, i, f); ok && switchEnd(s, j) {
			return j, true
		}
	}
	return i, false
}

// switchEnd reports whether a switch name may end at i
func switchEnd(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	switch s[i] {
	case ' ', '\t', '/', '"':
		return true
	}
	return false
}

// program matches name or name.exe at the start of s, not followed by a
// byte that would continue the name.
func program(s, name string) (int, bool) {
	i, ok := fold(s, 0, name)
	if !ok {
		return 0, false
	}
	if j, ok := fold(s, i, ".exe"); ok {
		i = j
	}
	if i < len(s) && isNameByte(s[i]) {
		return 0, false
	}
	return i, true
}

func fold(s string, i int, word string) (int, bool) {
	if len(s)-i < len(word) || !strings.EqualFold(s[i:i+len(word)], word) {
		return i, false
	}
	return i + len(word), true
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// skipQuoted returns the index after the quote closing the one at i, or
// len(s) when it is unterminated.
func skipQuoted(s string, i int) int {
	j := strings.IndexByte(s[i+1:], '"')
	if j < 0 {
		return len(s)
	}
	return i + j + 2
}
