package interpreter

import (
	"io"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/shellwords"
)

// curlShorts are accepted as boolean switches so bundles like -sSLk parse.
// o and O are defined with their real meaning.
const curlShorts = "abcdefghijklmnpqrstuvwxyzABCDEFGHIJKLMNPQRSTUVWXYZ0123456789#:"

type curlFlags struct {
	set        *pflag.FlagSet
	output     *string
	remoteName *bool
}

func newCurlFlags() *curlFlags {
	fs := pflag.NewFlagSet("curl", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	f := &curlFlags{set: fs}
	f.output = fs.StringP("output", "o", "", "Write to file instead of stdout")
	f.remoteName = fs.BoolP("remote-name", "O", false, "Write output to a file named as the remote file")
	for _, c := range curlShorts {
		fs.BoolP("short-"+string(c), string(c), false, "")
	}
	return f
}

// knownLong drops long options other than --output and --remote-name.
// Their values, if any, stay behind as positional words.
func knownLong(args []string) []string {
	kept := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "--") && a != "--" {
			name, _, _ := strings.Cut(a[2:], "=")
			if name != "output" && name != "remote-name" {
				continue
			}
		}
		kept = append(kept, a)
	}
	return kept
}

// ParseCurl reduces a curl command line to a Download. Empty "" pairs are
// removed first. The URL is the first positional argument; the destination
// comes from -o/--output, or from the URL path when -O/--remote-name is
// given.
func ParseCurl(command string) (Download, error) {
	command = strings.ReplaceAll(command, `""`, "")
	words, err := shellwords.Split(command)
	if err != nil {
		return Download{}, errors.NewTokenizeError(command, err)
	}
	if len(words) < 2 {
		return Download{}, errors.NewArgumentError(command, "curl without arguments")
	}

	flags := newCurlFlags()
	if err := flags.set.Parse(knownLong(words[1:])); err != nil {
		return Download{}, errors.Wrap(errors.ErrArgument, "cannot parse curl options", err).
			WithContext("command", command)
	}
	if flags.set.NArg() == 0 {
		return Download{}, errors.NewArgumentError(command, "curl without a URL")
	}

	src := flags.set.Arg(0)
	dst := *flags.output
	if *flags.remoteName {
		dst = remoteName(src)
	}
	return Download{Command: command, Src: src, Dst: dst}, nil
}

// remoteName is the last segment of the URL path
func remoteName(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	return p[strings.LastIndexByte(p, '/')+1:]
}
