// Package dimse is the minimal concrete stand-in for the "wire-level
// association/DIMSE library" spec.md §1 places out of scope for the
// gateway core. It defines the Associator/Dialer/Listener interfaces the
// core depends on, plus one length-prefixed TCP implementation of them —
// enough to carry C-ECHO and C-STORE verbs and the two status codes
// spec.md §6 names.
package dimse

import (
	"context"
	"errors"
	"fmt"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
)

// Status is a DIMSE response status code.
type Status uint16

const (
	// StatusSuccess is the success status, 0x0000.
	StatusSuccess Status = 0x0000
	// StatusRefused is the generic "out of resources / refused" status.
	StatusRefused Status = 0xA700
)

// Sentinel errors an Associator's methods return; the forwarder (internal
// package forward) classifies them into ForwardError sub-codes.
var (
	ErrTimeout              = errors.New("timeout")
	ErrAssociationRefused   = errors.New("association_refused")
	ErrNoStatus             = errors.New("c_store_no_status")
	ErrAssociationReleased  = errors.New("dimse: association already released")
)

// AssociationError wraps a low-level failure establishing or using an
// association (connection refused, protocol error, etc.), distinct from
// a clean ErrAssociationRefused response.
type AssociationError struct {
	Cause error
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association_error:%s", e.Cause)
}

func (e *AssociationError) Unwrap() error { return e.Cause }

// AssociationConfig describes the outbound peer the core wants to talk to.
type AssociationConfig struct {
	Host      string
	Port      int
	CallingAE string
	CalledAE  string
}

// Associator is a single open outbound association (a DIMSE "SCU" role).
// The core never holds a raw connection; it holds an Associator.
type Associator interface {
	// SendCStore sends obj and returns the peer's status, or one of the
	// sentinel errors above (possibly wrapped) on failure.
	SendCStore(ctx context.Context, obj *dcmobject.Object) (Status, error)
	// SendCEcho pings the peer.
	SendCEcho(ctx context.Context) (Status, error)
	// Release closes the association. Safe to call more than once.
	Release() error
}

// Dialer opens outbound associations. Production code uses TCPDialer;
// tests substitute a fake that returns a scripted Associator.
type Dialer interface {
	Associate(ctx context.Context, cfg AssociationConfig) (Associator, error)
}

// Event carries the association metadata common to every inbound verb.
type Event struct {
	CalledAE  string
	CallingAE string
	RemoteIP  string
}

// StoreEvent is delivered to the C-STORE handler.
type StoreEvent struct {
	Event
	FileMeta dcmobject.Header
	Object   *dcmobject.Object
}

// EchoHandler handles an inbound C-ECHO.
type EchoHandler func(ctx context.Context, ev Event) Status

// StoreHandler handles an inbound C-STORE.
type StoreHandler func(ctx context.Context, ev StoreEvent) Status
