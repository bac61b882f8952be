// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// TailOptions configures Tail.
type TailOptions struct {
	// URL is the server base URL, optionally with the socket.io path, e.g.
	// http://localhost:8080/socket.io/.
	URL string
	// Node narrows the stream to one node address when set.
	Node string
	// ConnectTimeout bounds the initial connection.
	ConnectTimeout time.Duration
}

// Tail connects to a status feed and writes one line per event to out until
// ctx is done.
func Tail(ctx context.Context, opts TailOptions, out io.Writer) error {
	logger := ctxlog.FromContext(ctx).With("url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid status feed URL %q", opts.URL)
	}
	path := parsedURL.Path
	if path == "" || path == "/" {
		path = "/socket.io/"
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	clientOpts := socket.DefaultOptions()
	clientOpts.SetPath(path)
	clientOpts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, clientOpts)
	client := manager.Socket("/", clientOpts)
	defer func() {
		logger.Debug("Disconnecting status feed client")
		client.Disconnect()
	}()

	var writeMu sync.Mutex
	write := func(event string, args []any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := WriteEvent(out, event, args); err != nil {
			logger.Warn("Failed to write event.", "event", event, "error", err)
		}
	}

	connected := make(chan struct{}, 1)
	failed := make(chan error, 1)

	client.On(types.EventName("connect"), func(...any) {
		logger.Info("Connected to status feed", "sid", client.Id())
		if opts.Node != "" {
			client.Emit(EventSubscribe, opts.Node)
		}
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	client.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("connection failed: %w", e)
			}
		}
		select {
		case failed <- err:
		default:
		}
	})
	for _, event := range []string{EventSnapshot, EventStatus, EventPorts, EventOutputs} {
		client.On(types.EventName(event), func(args ...any) {
			write(event, args)
		})
	}

	client.Connect()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-connected:
	case err := <-failed:
		return err
	case <-connectCtx.Done():
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("timed out while waiting for initial connection")
	}

	<-ctx.Done()
	return nil
}

// WriteEvent writes `<event> <json>` followed by a newline.
func WriteEvent(out io.Writer, event string, args []any) error {
	var payload any
	if len(args) == 1 {
		payload = args[0]
	} else if len(args) > 1 {
		payload = args
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s %s\n", event, data)
	return err
}
