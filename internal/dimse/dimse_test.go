package dimse

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
)

func startTestListener(t *testing.T, echo EchoHandler, store StoreHandler) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := &Listener{cfg: ListenerConfig{AETitle: "EDGE", Addr: ln.Addr().String()}, echo: echo, store: store}
	l.ln = ln

	ctx, cancel := context.WithCancel(context.Background())
	go l.ListenAndServe(ctx) //nolint:errcheck // accept loop exits via ctx cancel in Shutdown

	return ln.Addr().String(), func() {
		cancel()
		l.Shutdown()
	}
}

func TestEchoRoundTrip(t *testing.T) {
	addr, stop := startTestListener(t, func(ctx context.Context, ev Event) Status {
		return StatusSuccess
	}, nil)
	defer stop()

	host, port := splitAddr(t, addr)
	dialer := TCPDialer{Timeout: 2 * time.Second}
	assoc, err := dialer.Associate(context.Background(), AssociationConfig{Host: host, Port: port, CallingAE: "SENDER", CalledAE: "EDGE"})
	if err != nil {
		t.Fatalf("Associate: %v", err)
	}
	defer assoc.Release()

	status, err := assoc.SendCEcho(context.Background())
	if err != nil {
		t.Fatalf("SendCEcho: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %v, want success", status)
	}
}

func TestStoreRoundTrip_DispatchesToHandler(t *testing.T) {
	var gotCalling string
	addr, stop := startTestListener(t, nil, func(ctx context.Context, ev StoreEvent) Status {
		gotCalling = ev.CallingAE
		if ev.Object.StudyInstanceUID != "1.2.3" {
			t.Errorf("StudyInstanceUID = %q", ev.Object.StudyInstanceUID)
		}
		return StatusSuccess
	})
	defer stop()

	host, port := splitAddr(t, addr)
	dialer := TCPDialer{Timeout: 2 * time.Second}
	assoc, err := dialer.Associate(context.Background(), AssociationConfig{Host: host, Port: port, CallingAE: "SENDER", CalledAE: "EDGE"})
	if err != nil {
		t.Fatalf("Associate: %v", err)
	}
	defer assoc.Release()

	obj := &dcmobject.Object{Header: dcmobject.Header{
		StudyInstanceUID: "1.2.3",
		SOPInstanceUID:   "1.2.3.4",
		SOPClassUID:      "1.2.840.10008.5.1.4.1.1.2",
		Modality:         "CT",
	}}
	status, err := assoc.SendCStore(context.Background(), obj)
	if err != nil {
		t.Fatalf("SendCStore: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %v, want success", status)
	}
	if gotCalling != "SENDER" {
		t.Fatalf("calling AE = %q, want SENDER", gotCalling)
	}
}

func TestStoreRoundTrip_HandlerRefuses(t *testing.T) {
	addr, stop := startTestListener(t, nil, func(ctx context.Context, ev StoreEvent) Status {
		return StatusRefused
	})
	defer stop()

	host, port := splitAddr(t, addr)
	dialer := TCPDialer{Timeout: 2 * time.Second}
	assoc, err := dialer.Associate(context.Background(), AssociationConfig{Host: host, Port: port, CallingAE: "SENDER", CalledAE: "EDGE"})
	if err != nil {
		t.Fatalf("Associate: %v", err)
	}
	defer assoc.Release()

	status, err := assoc.SendCStore(context.Background(), &dcmobject.Object{})
	if err != nil {
		t.Fatalf("SendCStore: %v", err)
	}
	if status != StatusRefused {
		t.Fatalf("status = %v, want refused", status)
	}
}

func TestAssociate_ConnectionRefusedWhenNothingListening(t *testing.T) {
	dialer := TCPDialer{Timeout: 500 * time.Millisecond}
	_, err := dialer.Associate(context.Background(), AssociationConfig{Host: "127.0.0.1", Port: 1, CallingAE: "SENDER", CalledAE: "EDGE"})
	if err == nil {
		t.Fatal("expected error dialing a closed port")
	}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi(%q): %v", portStr, err)
	}
	return host, port
}
