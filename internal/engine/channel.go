package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/emberfx/emberlink/internal/metrics"
	"github.com/emberfx/emberlink/internal/protocol"
)

// channel frames outgoing commands and demultiplexes incoming events for one
// engine run. It owns the pending-request table; the bridge owns the process
// the streams belong to.
//
// Dispatch is id-priority: an incoming event whose correlation id matches a
// pending request settles that request regardless of the event's kind (the
// engine echoes the id on whichever event answers the command, e.g. a
// status_update answering a load_image). Only uncorrelated events reach the
// kind dispatcher. Whether a reply's kind should be required to match its
// request is an open point in the engine protocol; until that is settled
// upstream, id match wins.
type channel struct {
	pending *pendingTable
	timeout time.Duration
	logger  *slog.Logger

	onEvent    func(protocol.Event) // uncorrelated events, in arrival order
	onActivity func()               // any successfully parsed line

	wmu   sync.Mutex
	w     io.Writer // nil once closed
	lines protocol.LineBuffer
}

func newChannel(w io.Writer, timeout time.Duration, logger *slog.Logger,
	onEvent func(protocol.Event), onActivity func()) *channel {
	return &channel{
		pending:    newPendingTable(),
		timeout:    timeout,
		logger:     logger,
		onEvent:    onEvent,
		onActivity: onActivity,
		w:          w,
	}
}

// write serializes cmd to one newline-terminated JSON line and writes it.
// Fails immediately when the stream is closed; nothing is ever queued.
func (c *channel) write(cmd protocol.Command) error {
	line, err := protocol.Marshal(cmd)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.w == nil {
		return ErrStreamClosed
	}
	if _, err := c.w.Write(line); err != nil {
		return err
	}
	metrics.IncCommand(string(cmd.Type))
	return nil
}

// send transmits a fire-and-forget command. The id (assigned if absent) is
// only for log correlation; no pending entry is created.
func (c *channel) send(cmd protocol.Command) error {
	if cmd.ID == "" {
		cmd.ID = protocol.NewID()
	}
	return c.write(cmd)
}

// call transmits a command that expects a reply and blocks until the matching
// correlation resolves, rejects, times out, or ctx is done. The pending entry
// is registered before the write so a reply can never race the registration.
func (c *channel) call(ctx context.Context, cmd protocol.Command) (json.RawMessage, error) {
	if cmd.ID == "" {
		cmd.ID = protocol.NewID()
	}
	ch := c.pending.add(cmd.ID, string(cmd.Type), c.timeout)
	if err := c.write(cmd); err != nil {
		c.pending.drop(cmd.ID)
		return nil, err
	}
	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		c.pending.drop(cmd.ID)
		return nil, ctx.Err()
	}
}

// feed consumes one chunk read from the engine's output stream. Chunks may
// batch several lines or split one line across reads; complete lines are
// processed strictly in arrival order. A malformed line is dropped with a
// warning and does not affect its neighbors.
func (c *channel) feed(chunk []byte) {
	for _, line := range c.lines.Feed(chunk) {
		ev, err := protocol.ParseEvent(line)
		if err != nil {
			metrics.IncDroppedLine()
			c.logger.Warn("dropping unparseable engine line", "error", err, "line", string(line))
			continue
		}
		if c.onActivity != nil {
			c.onActivity()
		}
		if ev.ReplyTo != "" {
			res := result{payload: ev.Payload}
			if ev.Type == protocol.EvtError {
				res = result{err: &EngineError{Message: ev.ErrorMessage()}}
			}
			if c.pending.settle(ev.ReplyTo, res) {
				continue
			}
			// Unknown or already-settled id: fall through to kind dispatch so
			// late replies are still visible to subscribers.
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

// close marks the stream unwritable and rejects every outstanding request
// with err. A broken channel cannot selectively keep some in-flight requests
// valid, so teardown is all-or-nothing.
func (c *channel) close(err error) {
	c.wmu.Lock()
	c.w = nil
	c.wmu.Unlock()
	if err == nil {
		err = ErrDisconnected
	}
	if n := c.pending.failAll(err); n > 0 {
		c.logger.Debug("rejected pending requests on channel close", "count", n)
	}
}
