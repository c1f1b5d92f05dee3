// Package worker runs the database access loop.
//
// A Worker owns the only handle to its database. Callers post serialized
// request payloads; a single goroutine drains them strictly in arrival
// order and emits exactly one response per request on the message stream,
// so response order is request order and no two batches ever execute
// concurrently against the handle. Every failure, from an unparsable
// payload to a mid-batch constraint violation, is converted to an Err
// response at this boundary; the loop itself only stops when its context
// is cancelled.
//
// When trace logging is enabled for the worker component (for example via
// LOCALDB_LOG=info,worker=trace) the loop additionally emits out-of-band
// Debug packets on the message stream. They carry no protocol meaning and
// are never the only reply to a request.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mealframe/localdb"
	"github.com/mealframe/localdb/config"
	"github.com/mealframe/localdb/logging"
	"github.com/mealframe/localdb/protocol"
	"github.com/mealframe/localdb/store/sqlite"
)

// defaultQueueSize bounds how many requests may wait while one executes.
const defaultQueueSize = 16

// Options configures a Worker.
type Options struct {
	// QueueSize is the request queue capacity. Defaults to 16.
	QueueSize int
	// Logger receives worker diagnostics. Trace level on the worker
	// component also enables Debug packets on the message stream.
	Logger *slog.Logger
}

// Worker is the single-consumer database access loop.
type Worker struct {
	manager  *sqlite.Manager
	logger   *slog.Logger
	requests chan []byte
	messages chan []byte
}

// New creates a Worker storing its database under dirs. Run must be called
// before posted requests make progress.
func New(dirs config.StorageDirs, opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Worker{
		manager:  sqlite.NewManager(dirs, logger),
		logger:   logger.With("component", "worker"),
		requests: make(chan []byte, queueSize),
		messages: make(chan []byte, queueSize),
	}
}

// Post enqueues one request payload. It blocks while the queue is full;
// the payload is consumed exactly once by the loop.
func (w *Worker) Post(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case w.requests <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the ordered response stream. The channel carries one
// response per posted request, possibly interleaved with Debug packets,
// and closes when Run returns.
func (w *Worker) Messages() <-chan []byte {
	return w.messages
}

// Run drains the request queue until ctx is cancelled, processing each
// request fully, including any commit or rollback, before accepting the
// next.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.messages)
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-w.requests:
			for _, msg := range w.handle(ctx, payload) {
				select {
				case w.messages <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// handle turns one payload into its reply messages: zero or more Debug
// packets followed by exactly one response. A panic while handling a
// request must not take the loop down with it.
func (w *Worker) handle(ctx context.Context, payload []byte) (msgs [][]byte) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("request handler panicked", "panic", r)
			msgs = append(msgs, protocol.EncodeErr(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		w.logger.Warn("rejecting request", "error", err)
		return append(msgs, protocol.EncodeErr(err.Error()))
	}

	msgs = w.trace(ctx, msgs, "handling "+req.Kind)
	return append(msgs, w.dispatch(ctx, req))
}

// dispatch routes a decoded request to the handle manager and executor and
// encodes its single response.
func (w *Worker) dispatch(ctx context.Context, req protocol.Request) []byte {
	db, err := w.manager.Ensure(ctx, req.DatabaseFile)
	if err != nil {
		w.logger.Error("database unavailable", "file", req.DatabaseFile, "error", err)
		return protocol.EncodeErr(err.Error())
	}

	switch req.Kind {
	case protocol.KindInitDbFile:
		return protocol.EncodeOk()

	case protocol.KindExec:
		if err := db.ExecBatch(ctx, req.Statements); err != nil {
			return protocol.EncodeErr(err.Error())
		}
		return protocol.EncodeOk()

	case protocol.KindQuery:
		rows, err := db.Query(ctx, req.SQL, req.Bind)
		if err != nil {
			return protocol.EncodeErr(err.Error())
		}
		encoded, err := protocol.EncodeRows(rows)
		if err != nil {
			return protocol.EncodeErr(fmt.Sprintf("encode rows: %v", err))
		}
		return encoded

	default:
		// DecodeRequest only yields the kinds above.
		return protocol.EncodeErr(localdb.UnknownRequestError{Kind: req.Kind}.Error())
	}
}

// trace logs at trace level and, when that level is enabled for the worker
// component, mirrors the message as an out-of-band Debug packet.
func (w *Worker) trace(ctx context.Context, msgs [][]byte, message string) [][]byte {
	if !w.logger.Enabled(ctx, logging.LevelTrace.ToSlog()) {
		return msgs
	}
	w.logger.Log(ctx, logging.LevelTrace.ToSlog(), message)
	return append(msgs, protocol.EncodeDebug(message))
}
