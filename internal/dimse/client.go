package dimse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
)

// TCPDialer opens outbound associations over plain TCP. Timeout applies
// to association setup, each verb round trip, and idle reads alike — the
// single timeout value spec.md §5 calls for.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) Associate(ctx context.Context, cfg AssociationConfig) (Associator, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &AssociationError{Cause: err}
	}

	assoc := &tcpAssociation{conn: conn, r: bufio.NewReader(conn), timeout: timeout}
	if err := assoc.deadline(); err != nil {
		conn.Close()
		return nil, &AssociationError{Cause: err}
	}
	if err := writeAssociateRequest(conn, cfg.CallingAE, cfg.CalledAE); err != nil {
		conn.Close()
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, &AssociationError{Cause: err}
	}

	accepted := make([]byte, 1)
	if _, err := assoc.r.Read(accepted); err != nil {
		conn.Close()
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, &AssociationError{Cause: err}
	}
	if accepted[0] != 0x01 {
		conn.Close()
		return nil, ErrAssociationRefused
	}
	return assoc, nil
}

type tcpAssociation struct {
	conn     net.Conn
	r        *bufio.Reader
	timeout  time.Duration
	released bool
}

func (a *tcpAssociation) deadline() error {
	return a.conn.SetDeadline(time.Now().Add(a.timeout))
}

func (a *tcpAssociation) SendCStore(ctx context.Context, obj *dcmobject.Object) (Status, error) {
	var buf bytes.Buffer
	if err := dcmobject.Write(&buf, obj); err != nil {
		return 0, &AssociationError{Cause: err}
	}
	return a.roundTrip(verbStore, buf.Bytes())
}

func (a *tcpAssociation) SendCEcho(ctx context.Context) (Status, error) {
	return a.roundTrip(verbEcho, nil)
}

func (a *tcpAssociation) roundTrip(verb byte, payload []byte) (Status, error) {
	if a.released {
		return 0, ErrAssociationReleased
	}
	if err := a.deadline(); err != nil {
		return 0, &AssociationError{Cause: err}
	}
	if err := writeVerbRequest(a.conn, verb, payload); err != nil {
		if isTimeout(err) {
			return 0, ErrTimeout
		}
		return 0, &AssociationError{Cause: err}
	}
	status, present, err := readVerbResponse(a.r)
	if err != nil {
		if isTimeout(err) {
			return 0, ErrTimeout
		}
		return 0, &AssociationError{Cause: err}
	}
	if !present {
		return 0, ErrNoStatus
	}
	return status, nil
}

func (a *tcpAssociation) Release() error {
	if a.released {
		return nil
	}
	a.released = true
	return a.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
