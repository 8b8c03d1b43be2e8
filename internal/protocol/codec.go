package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal serializes a command to exactly one newline-terminated JSON line.
// A nil payload is sent as an empty object so the wire shape stays constant.
func Marshal(cmd Command) ([]byte, error) {
	if cmd.Type == "" {
		return nil, fmt.Errorf("command missing type tag")
	}
	if cmd.Payload == nil {
		cmd.Payload = map[string]any{}
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s command: %w", cmd.Type, err)
	}
	return append(b, '\n'), nil
}

// LineBuffer reassembles newline-terminated frames from arbitrary read
// chunks. A chunk may hold zero, one, or many complete lines, and a line may
// span several chunks; bytes after the last newline are kept until the rest
// arrives.
type LineBuffer struct {
	rem []byte
}

// Feed appends chunk and returns every complete line it closes, in arrival
// order, without the trailing newline. Empty lines are skipped.
func (b *LineBuffer) Feed(chunk []byte) [][]byte {
	b.rem = append(b.rem, chunk...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(b.rem, '\n')
		if i < 0 {
			return lines
		}
		line := bytes.TrimRight(b.rem[:i], "\r")
		b.rem = b.rem[i+1:]
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (b *LineBuffer) Pending() int { return len(b.rem) }
