package lifecycle

// stackdump.go renders every goroutine's call stack for the diagnostic signal.
//
// The output mirrors a thread dump: one "# Thread: name(id)" header per
// goroutine followed by one line per frame and, when the source file is
// readable, the stripped source line. Goroutines started through a WorkerSet
// carry the worker name; goroutine 1 is "main".

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/maruel/panicparse/v2/stack"
)

// Frame is one call in a captured stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// GoroutineStack is the captured stack of one goroutine.
type GoroutineStack struct {
	ID     int64
	State  string
	Frames []Frame
}

// CaptureStacks snapshots the stacks of all goroutines.
func CaptureStacks() []GoroutineStack {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return parseStacks(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// parseStacks parses the text produced by runtime.Stack. Paths are kept as
// printed; the dump runs on the machine that produced them.
func parseStacks(b []byte) []GoroutineStack {
	snap, _, err := stack.ScanSnapshot(bytes.NewReader(b), io.Discard, &stack.Opts{})
	if err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("stack dump partially parsed", "error", err)
	}
	if snap == nil {
		return nil
	}

	stacks := make([]GoroutineStack, 0, len(snap.Goroutines))
	for _, g := range snap.Goroutines {
		gs := GoroutineStack{ID: int64(g.ID), State: g.State}
		for _, c := range g.Stack.Calls {
			gs.Frames = append(gs.Frames, Frame{
				Function: c.Func.Complete,
				File:     c.RemoteSrcPath,
				Line:     c.Line,
			})
		}
		stacks = append(stacks, gs)
	}
	return stacks
}

// sourceCache reads source lines, remembering files per dump.
type sourceCache map[string][]string

func (c sourceCache) line(file string, n int) string {
	lines, ok := c[file]
	if !ok {
		data, err := os.ReadFile(file)
		if err == nil {
			lines = strings.Split(string(data), "\n")
		}
		c[file] = lines
	}
	if n <= 0 || n > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[n-1])
}

// FormatStacks renders stacks as a thread dump. names maps goroutine ids to
// display names.
func FormatStacks(stacks []GoroutineStack, names map[int64]string) string {
	src := make(sourceCache)
	var b strings.Builder
	for _, g := range stacks {
		name := names[g.ID]
		if name == "" {
			name = "goroutine"
			if g.ID == 1 {
				name = "main"
			}
		}
		fmt.Fprintf(&b, "\n# Thread: %s(%d)", name, g.ID)
		for _, f := range g.Frames {
			fmt.Fprintf(&b, "\nFile: %q, line %d, in %s", f.File, f.Line, f.Function)
			if line := src.line(f.File, f.Line); line != "" {
				fmt.Fprintf(&b, "\n  %s", line)
			}
		}
	}
	return b.String()
}

// DumpStacks logs every goroutine stack to logger. It only reads state.
func DumpStacks(logger *slog.Logger, workers *WorkerSet) {
	var names map[int64]string
	if workers != nil {
		names = workers.names()
	}
	stacks := CaptureStacks()
	logger.Info(FormatStacks(stacks, names), "goroutines", len(stacks))
}
