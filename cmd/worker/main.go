// Command worker is a stand-in AI inference node: it accepts a
// C-STORE, waits an optional simulated processing delay, and sends
// back a synthetic AI_RESULT object to the gateway.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
)

// secondaryCaptureImageStorage is the SOP Class UID the worker stamps
// onto every synthetic result it produces.
const secondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7"

type config struct {
	gatewayHost string
	gatewayPort int
	gatewayAE   string
	workerAE    string
	workerPort  int
	delay       time.Duration
}

func configFromEnv() config {
	return config{
		gatewayHost: envOr("GATEWAY_HOST", "edge"),
		gatewayPort: envInt("GATEWAY_PORT", 11112),
		gatewayAE:   envOr("GATEWAY_AE_TITLE", "MINI_EDGE"),
		workerAE:    envOr("WORKER_AE_TITLE", "WORKER"),
		workerPort:  envInt("WORKER_PORT", 11112),
		delay:       time.Duration(envFloatSeconds("WORKER_DELAY_SECONDS", 0) * float64(time.Second)),
	}
}

func main() {
	cfg := configFromEnv()

	listener := dimse.NewListener(
		dimse.ListenerConfig{AETitle: cfg.workerAE, Addr: fmt.Sprintf(":%d", cfg.workerPort)},
		func(ctx context.Context, ev dimse.Event) dimse.Status { return dimse.StatusSuccess },
		func(ctx context.Context, ev dimse.StoreEvent) dimse.Status {
			return handleStore(ctx, cfg, ev)
		},
	)

	fmt.Printf("worker: listening on 0.0.0.0:%d AET=%s\n", cfg.workerPort, cfg.workerAE)
	if err := listener.ListenAndServe(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func handleStore(ctx context.Context, cfg config, ev dimse.StoreEvent) dimse.Status {
	if cfg.delay > 0 {
		time.Sleep(cfg.delay)
	}

	result := buildResult(ev.Object)
	if err := sendResult(ctx, cfg, result); err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to send result: %v\n", err)
		return dimse.StatusRefused
	}
	return dimse.StatusSuccess
}

// buildResult synthesizes a minimal AI_RESULT secondary-capture object
// carrying the source study forward and a single dummy pixel.
func buildResult(in *dcmobject.Object) *dcmobject.Object {
	studyUID := ""
	if in != nil {
		studyUID = in.StudyInstanceUID
	}
	if studyUID == "" {
		studyUID = newUID()
	}

	return &dcmobject.Object{
		Header: dcmobject.Header{
			StudyInstanceUID:  studyUID,
			SeriesInstanceUID: newUID(),
			SOPInstanceUID:    newUID(),
			SOPClassUID:       secondaryCaptureImageStorage,
			Modality:          "OT",
			SeriesDescription: "AI_RESULT",
		},
		PixelData: []byte{0x00, 0x00},
	}
}

func sendResult(ctx context.Context, cfg config, result *dcmobject.Object) error {
	dialer := dimse.TCPDialer{Timeout: 30 * time.Second}
	assoc, err := dialer.Associate(ctx, dimse.AssociationConfig{
		Host: cfg.gatewayHost, Port: cfg.gatewayPort, CallingAE: cfg.workerAE, CalledAE: cfg.gatewayAE,
	})
	if err != nil {
		return fmt.Errorf("gateway_association_refused: %w", err)
	}
	defer assoc.Release()

	status, err := assoc.SendCStore(ctx, result)
	if err != nil {
		return fmt.Errorf("gateway_c_store_failed: %w", err)
	}
	if status != dimse.StatusSuccess {
		return fmt.Errorf("gateway_c_store_failed:0x%04X", status)
	}
	return nil
}

// newUID mints a dotted-decimal identifier from a ULID's integer
// representation, matching the UID shape dcmobject.ValidUID expects.
func newUID() string {
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	n := new(big.Int).SetBytes(id.Bytes())
	return "2.25." + n.String()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloatSeconds(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return def
	}
	return f
}
