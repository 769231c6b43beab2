// Package router implements the content-based routing decision used in
// gateway mode: given an object's header, decide whether it goes to the
// archive or to a worker.
package router

import (
	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
)

// Route is a forwarding destination.
type Route string

const (
	RouteArchive Route = "archive"
	RouteWorker  Route = "worker"
)

// SecondaryCaptureImageStorage is the well-known SOP class UID routed
// straight to the archive regardless of modality.
const SecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7"

// Decide applies the gateway-mode decision table to h.
func Decide(h dcmobject.Header) Route {
	switch {
	case h.SeriesDescription == "AI_RESULT":
		return RouteArchive
	case h.Modality == "SR" || h.Modality == "OT":
		return RouteArchive
	case h.SOPClassUID == SecondaryCaptureImageStorage:
		return RouteArchive
	default:
		return RouteWorker
	}
}
