package router

import (
	"testing"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		h    dcmobject.Header
		want Route
	}{
		{"ai_result_by_series_description", dcmobject.Header{SeriesDescription: "AI_RESULT"}, RouteArchive},
		{"modality_sr", dcmobject.Header{Modality: "SR"}, RouteArchive},
		{"modality_ot", dcmobject.Header{Modality: "OT"}, RouteArchive},
		{"secondary_capture", dcmobject.Header{SOPClassUID: SecondaryCaptureImageStorage}, RouteArchive},
		{"ct_to_worker", dcmobject.Header{Modality: "CT"}, RouteWorker},
		{"mr_to_worker", dcmobject.Header{Modality: "MR"}, RouteWorker},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Decide(c.h); got != c.want {
				t.Errorf("Decide(%+v) = %v, want %v", c.h, got, c.want)
			}
		})
	}
}
