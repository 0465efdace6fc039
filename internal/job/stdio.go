package job

import (
	"io"
	"os"

	"github.com/guti2010/execpool/internal/perr"
)

// StdioKind selects how a Job's stdout/stderr stream is wired.
type StdioKind int

const (
	// StdioInherit passes the pool process's own stream through.
	StdioInherit StdioKind = iota
	// StdioNull discards the stream.
	StdioNull
	// StdioFile redirects to a path, re-opened in append mode across
	// restarts and chained reschedules so prior output survives.
	StdioFile
	// StdioPipe exposes the stream as an io.ReadCloser the caller can
	// consume (no supervisor-side buffering).
	StdioPipe
	// StdioMergeIntoStdout is only valid for Stderr: redirect stderr
	// into whatever stdout is wired to.
	StdioMergeIntoStdout
)

// Stdio describes one stdio target.
type Stdio struct {
	Kind StdioKind
	Path string
}

func InheritStdio() Stdio           { return Stdio{Kind: StdioInherit} }
func NullStdio() Stdio              { return Stdio{Kind: StdioNull} }
func FileStdio(path string) Stdio   { return Stdio{Kind: StdioFile, Path: path} }
func PipeStdio() Stdio              { return Stdio{Kind: StdioPipe} }
func MergeIntoStdoutStdio() Stdio   { return Stdio{Kind: StdioMergeIntoStdout} }

// resolvedStdio holds the open handles for one attempt, so Job can
// close them deterministically on every exit path (success, timeout,
// eviction, shutdown).
type resolvedStdio struct {
	writer io.Writer
	closer io.Closer // nil for inherited/null streams
	reader io.ReadCloser // set only for StdioPipe
}

func resolve(s Stdio, fallback io.Writer) (resolvedStdio, error) {
	switch s.Kind {
	case StdioInherit:
		return resolvedStdio{writer: fallback}, nil
	case StdioNull:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return resolvedStdio{}, perr.Wrap(perr.StdioFailed, err, "open devnull")
		}
		return resolvedStdio{writer: f, closer: f}, nil
	case StdioFile:
		f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return resolvedStdio{}, perr.Wrap(perr.StdioFailed, err, "open stdio file "+s.Path)
		}
		return resolvedStdio{writer: f, closer: f}, nil
	case StdioPipe:
		r, w := io.Pipe()
		return resolvedStdio{writer: w, closer: w, reader: r}, nil
	case StdioMergeIntoStdout:
		// Resolved by the caller (spawn in lifecycle.go), which substitutes the
		// already-resolved stdout writer here.
		return resolvedStdio{writer: fallback}, nil
	default:
		return resolvedStdio{}, perr.New(perr.ConfigInvalid, "unknown stdio kind")
	}
}

func (r resolvedStdio) close() {
	if r.closer != nil {
		_ = r.closer.Close()
	}
}
