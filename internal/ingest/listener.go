// Package ingest implements the TCP listener and per-connection frame
// dispatcher (spec §4.6, §4.7). Each accepted connection runs its own
// goroutine with its own append-only read buffer and is never shared with
// another connection's state — grounded on the goroutine-per-connection
// net.Listen loop pattern used across the retrieved corpus (e.g. the
// tracker service's net.Listen("tcp", ...) + go routine accept loop).
package ingest

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/cinet-track/ingest/internal/cinet"
	"github.com/cinet-track/ingest/internal/hub"
	"github.com/cinet-track/ingest/internal/logging"
	"github.com/cinet-track/ingest/internal/store"
)

// Listener binds a TCP socket and hands each accepted connection to a fresh
// Handler. Shutdown is cooperative: Stop closes the listening socket and
// waits for in-flight handlers to drain.
type Listener struct {
	addr  string
	store store.Store
	hub   *hub.Hub
	cache *cinet.CipherCache

	ln net.Listener
	wg sync.WaitGroup
}

// NewListener builds a Listener that will dispatch accepted frames against
// st and publish parsed positions to h.
func NewListener(addr string, st store.Store, h *hub.Hub) *Listener {
	return &Listener{
		addr:  addr,
		store: st,
		hub:   h,
		cache: cinet.NewCipherCache(),
	}
}

// Run binds the socket and accepts connections until ctx is cancelled or
// Stop is called. It blocks until the accept loop exits.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln
	logging.L.Infow("ciNet listener started", "addr", l.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				if errors.Is(err, net.ErrClosed) {
					// Stop closed the listening socket.
					l.wg.Wait()
					return nil
				}
				logging.L.Warnw("accept error", "error", err)
				continue
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			h := newHandler(conn, l.store, l.hub, l.cache)
			h.run(ctx)
		}()
	}
}

// Stop closes the listening socket, which ends Run's accept loop, and waits
// for the handlers already running. Stop does not signal those handlers: each
// ends when its peer closes the connection or Run's ctx is cancelled.
func (l *Listener) Stop() {
	if l.ln != nil {
		l.ln.Close()
	}
	l.wg.Wait()
}
