package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSingleLine(t *testing.T) {
	cmd := Command{Type: CmdLoadImage, ID: "m1", Payload: map[string]any{"path": "/tmp/a.png"}}
	line, err := Marshal(cmd)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])
	// exactly one newline, at the end
	for _, b := range line[:len(line)-1] {
		assert.NotEqual(t, byte('\n'), b)
	}

	var got Command
	require.NoError(t, json.Unmarshal(line[:len(line)-1], &got))
	assert.Equal(t, cmd.Type, got.Type)
	assert.Equal(t, cmd.ID, got.ID)
	assert.Equal(t, "/tmp/a.png", got.Payload["path"])
}

func TestMarshalNilPayloadBecomesEmptyObject(t *testing.T) {
	line, err := Marshal(Command{Type: CmdHeartbeat})
	require.NoError(t, err)
	assert.Contains(t, string(line), `"payload":{}`)
}

func TestMarshalMissingType(t *testing.T) {
	_, err := Marshal(Command{})
	require.Error(t, err)
}

func TestMarshalOmitsEmptyID(t *testing.T) {
	line, err := Marshal(Command{Type: CmdPause})
	require.NoError(t, err)
	assert.NotContains(t, string(line), `"id"`)
}

func TestLineBufferChunking(t *testing.T) {
	lineA := `{"type":"status_update","payload":{"n":1}}`
	lineB := `{"type":"metrics_update","payload":{"fps":60}}`
	lineC := `{"type":"heartbeat_ack","payload":{}}`

	cases := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single full line",
			chunks: []string{lineA + "\n"},
			want:   []string{lineA},
		},
		{
			name:   "multiple lines in one chunk",
			chunks: []string{lineA + "\n" + lineB + "\n" + lineC + "\n"},
			want:   []string{lineA, lineB, lineC},
		},
		{
			name:   "line split mid-chunk",
			chunks: []string{lineA[:13], lineA[13:] + "\n"},
			want:   []string{lineA},
		},
		{
			name:   "split across three chunks",
			chunks: []string{lineA[:5], lineA[5:20], lineA[20:] + "\n" + lineB + "\n"},
			want:   []string{lineA, lineB},
		},
		{
			name:   "newline arriving alone",
			chunks: []string{lineA, "\n"},
			want:   []string{lineA},
		},
		{
			name:   "crlf terminated",
			chunks: []string{lineA + "\r\n"},
			want:   []string{lineA},
		},
		{
			name:   "blank lines skipped",
			chunks: []string{"\n\n" + lineA + "\n\n"},
			want:   []string{lineA},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf LineBuffer
			var got []string
			for _, ch := range tc.chunks {
				for _, line := range buf.Feed([]byte(ch)) {
					got = append(got, string(line))
				}
			}
			assert.Equal(t, tc.want, got)
			assert.Zero(t, buf.Pending())
		})
	}
}

func TestLineBufferKeepsIncompleteTail(t *testing.T) {
	var buf LineBuffer
	lines := buf.Feed([]byte(`{"type":"ready"`))
	assert.Empty(t, lines)
	assert.Positive(t, buf.Pending())

	lines = buf.Feed([]byte(`,"payload":{}}` + "\n"))
	require.Len(t, lines, 1)
	assert.Zero(t, buf.Pending())
}

// Round-trip: any command sequence serialized and fed back in arbitrary
// chunkings reconstructs the same objects in order.
func TestFramingRoundTrip(t *testing.T) {
	cmds := []Command{
		NewCommand(CmdStartAnimation, nil),
		NewCommand(CmdUpdateSettings, map[string]any{"speed": 2.0}),
		NewCommand(CmdLoadImage, map[string]any{"path": "/p.png"}),
		NewCommand(CmdShutdown, nil),
	}
	var wire []byte
	for _, c := range cmds {
		line, err := Marshal(c)
		require.NoError(t, err)
		wire = append(wire, line...)
	}

	for _, chunkSize := range []int{1, 3, 7, 16, len(wire)} {
		var buf LineBuffer
		var got []Command
		for i := 0; i < len(wire); i += chunkSize {
			end := i + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			for _, line := range buf.Feed(wire[i:end]) {
				var c Command
				require.NoError(t, json.Unmarshal(line, &c))
				got = append(got, c)
			}
		}
		require.Len(t, got, len(cmds), "chunk size %d", chunkSize)
		for i := range cmds {
			assert.Equal(t, cmds[i].Type, got[i].Type)
			assert.Equal(t, cmds[i].ID, got[i].ID)
		}
	}
}
