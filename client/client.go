// Package client provides the caller-side handle to the database worker.
//
// A Client keeps at most one request in flight, so the worker's strict
// response-follows-request ordering is all the correlation needed: the
// first non-Debug message after a post is that request's response. Debug
// packets are logged and skipped. A call abandoned after its request was
// posted still owes the stream one response; the next call drains it
// before reading its own.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mealframe/localdb"
	"github.com/mealframe/localdb/protocol"
	"github.com/mealframe/localdb/worker"
)

// ErrClosed is returned when the worker's message stream has closed, which
// only happens when the worker's run context is cancelled.
var ErrClosed = errors.New("worker message stream closed")

// Client is a handle to a running Worker.
type Client struct {
	mu     sync.Mutex
	worker *worker.Worker
	logger *slog.Logger

	// pending counts posted requests whose responses have not been read
	// yet. It exceeds one only when an earlier call was abandoned between
	// posting and reading; those responses are drained, not delivered.
	pending int
}

// New creates a Client for w. The worker must be running for calls to make
// progress.
func New(w *worker.Worker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		worker: w,
		logger: logger.With("component", "client"),
	}
}

// Call posts one raw payload and returns the raw response. Debug packets
// arriving before the response are logged and skipped.
func (c *Client) Call(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.worker.Post(ctx, payload); err != nil {
		return nil, err
	}
	c.pending++

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-c.worker.Messages():
			if !ok {
				return nil, ErrClosed
			}
			if protocol.IsDebug(msg) {
				c.logger.Debug("worker debug", "packet", string(msg))
				continue
			}
			c.pending--
			if c.pending > 0 {
				// Response to a call that gave up waiting. Discard it
				// so this call reads its own.
				c.logger.Debug("discarding response to abandoned call", "packet", string(msg))
				continue
			}
			return msg, nil
		}
	}
}

// roundTrip sends a payload and decodes the response.
func (c *Client) roundTrip(ctx context.Context, payload []byte) (protocol.Response, error) {
	raw, err := c.Call(ctx, payload)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(raw)
}

// Init asks the worker to open the named database file. An empty name
// selects the default file.
func (c *Client) Init(ctx context.Context, databaseFile string) error {
	payload, err := protocol.EncodeInitRequest(databaseFile)
	if err != nil {
		return fmt.Errorf("encode init request: %w", err)
	}

	resp, err := c.roundTrip(ctx, payload)
	if err != nil {
		return err
	}
	switch resp.Type {
	case protocol.TypeOk:
		return nil
	case protocol.TypeErr:
		return errors.New(resp.Message)
	default:
		return fmt.Errorf("unexpected %s response to InitDbFile", resp.Type)
	}
}

// Exec runs the statements as one atomic batch.
func (c *Client) Exec(ctx context.Context, databaseFile string, stmts []localdb.Statement) error {
	payload, err := protocol.EncodeExecRequest(databaseFile, stmts)
	if err != nil {
		return fmt.Errorf("encode exec request: %w", err)
	}

	resp, err := c.roundTrip(ctx, payload)
	if err != nil {
		return err
	}
	switch resp.Type {
	case protocol.TypeOk:
		return nil
	case protocol.TypeErr:
		return errors.New(resp.Message)
	default:
		return fmt.Errorf("unexpected %s response to Exec", resp.Type)
	}
}

// Query runs a single read statement and returns all matched rows.
func (c *Client) Query(ctx context.Context, databaseFile, sqlText string, bind []any) ([]localdb.Row, error) {
	payload, err := protocol.EncodeQueryRequest(databaseFile, sqlText, bind)
	if err != nil {
		return nil, fmt.Errorf("encode query request: %w", err)
	}

	resp, err := c.roundTrip(ctx, payload)
	if err != nil {
		return nil, err
	}
	switch resp.Type {
	case protocol.TypeRows:
		return resp.Rows, nil
	case protocol.TypeErr:
		return nil, errors.New(resp.Message)
	default:
		return nil, fmt.Errorf("unexpected %s response to Query", resp.Type)
	}
}
