package dimse

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
)

// ListenerConfig configures the inbound association acceptor.
type ListenerConfig struct {
	AETitle string
	Addr    string // e.g. ":11112"
}

// Listener is the SCP side: it accepts associations and dispatches
// C-ECHO/C-STORE verbs to registered handlers. It always accepts the
// association itself; spec.md's allow-list check happens inside the
// store handler, which returns StatusRefused for a disallowed caller.
type Listener struct {
	cfg   ListenerConfig
	echo  EchoHandler
	store StoreHandler

	mu   sync.Mutex
	ln   net.Listener
	wg   sync.WaitGroup
}

// NewListener creates a Listener with the given handlers. Either handler
// may be nil, in which case that verb is refused.
func NewListener(cfg ListenerConfig, echo EchoHandler, store StoreHandler) *Listener {
	return &Listener{cfg: cfg, echo: echo, store: store}
}

// ListenAndServe serves on the listener already set on l, or binds
// cfg.Addr if none is set, until ctx is canceled or Shutdown is called.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", l.cfg.Addr)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.ln = ln
		l.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		l.Shutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			l.wg.Wait()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.serveConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listening socket; in-flight connections finish on
// their own.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		l.ln.Close()
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	callingAE, calledAE, err := readAssociateRequest(r)
	if err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x01}); err != nil {
		return
	}

	ev := Event{
		CalledAE:  calledAE,
		CallingAE: callingAE,
		RemoteIP:  remoteIP(conn),
	}

	for {
		verb, payload, err := readVerbRequest(r)
		if err != nil {
			return
		}
		switch verb {
		case verbEcho:
			status := StatusRefused
			if l.echo != nil {
				status = l.echo(ctx, ev)
			}
			if err := writeVerbResponse(conn, status, true); err != nil {
				return
			}
		case verbStore:
			obj, decodeErr := dcmobject.Read(bytes.NewReader(payload), false)
			if decodeErr != nil {
				writeVerbResponse(conn, StatusRefused, true)
				continue
			}
			status := StatusRefused
			if l.store != nil {
				status = l.store(ctx, StoreEvent{Event: ev, FileMeta: obj.Header, Object: obj})
			}
			if err := writeVerbResponse(conn, status, true); err != nil {
				return
			}
		default:
			return
		}
	}
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
