// Package stream is the ingestion adapter: a line-delimited JSON TCP client
// that turns the sensor feed into a lazy, restartable sequence of records.
package stream

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/sentinelhq/sentinel/internal/metrics"
	"github.com/sentinelhq/sentinel/internal/record"
)

// Client reads records from the stream server, reconnecting with a fixed
// delay up to MaxRetries consecutive failures. Exhaustion terminates the
// sequence; the consumer treats that as "stop processing", not a crash.
type Client struct {
	Addr           string
	ReconnectDelay time.Duration
	MaxRetries     int

	// Dial is swappable for tests; defaults to net.Dial with a timeout.
	Dial func(ctx context.Context, addr string) (net.Conn, error)
}

// New creates a client for addr with the given retry policy.
func New(addr string, reconnectDelay time.Duration, maxRetries int) *Client {
	return &Client{
		Addr:           addr,
		ReconnectDelay: reconnectDelay,
		MaxRetries:     maxRetries,
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: 10 * time.Second}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// Run reads records and calls handle for each one until the context is
// cancelled or the retry budget is exhausted. handle is invoked between
// records only, so cancellation never leaves a record half-processed.
// Malformed lines are skipped with a warning.
func (c *Client) Run(ctx context.Context, handle func(*record.Record)) error {
	retries := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.Dial(ctx, c.Addr)
		if err != nil {
			retries++
			metrics.StreamReconnects.Inc()
			if retries > c.MaxRetries {
				slog.Error("stream: retry budget exhausted", "addr", c.Addr, "retries", c.MaxRetries)
				return nil
			}
			slog.Warn("stream: connect failed, retrying",
				"addr", c.Addr, "attempt", retries, "max", c.MaxRetries, "err", err)
			if !sleepCtx(ctx, c.ReconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		slog.Info("stream: connected", "addr", c.Addr)
		retries = 0

		err = c.consume(ctx, conn, handle)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("stream: connection lost", "addr", c.Addr, "err", err)
		if !sleepCtx(ctx, c.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// consume reads lines until the connection drops or the context ends.
func (c *Client) consume(ctx context.Context, conn net.Conn, handle func(*record.Record)) error {
	// Unblock the reader promptly on cancellation. The watcher exits with
	// its connection so reconnect cycles leave nothing behind.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := record.Decode(line)
		if err != nil {
			metrics.RecordsMalformed.Inc()
			slog.Warn("stream: skipping malformed record", "err", err)
			continue
		}
		handle(rec)
	}
	return scanner.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
