package dcmobject

import (
	"fmt"
	"regexp"
)

// uidPattern matches the dotted-decimal identifier format spec.md §6
// requires of Study/Series/SOP UIDs: digits separated by single dots,
// no leading or trailing dot.
var uidPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

const maxUIDLength = 64

// ValidUID reports whether s is a well-formed dotted-decimal UID. The
// receive path does not reject malformed UIDs from the network (spec.md
// §6); this is used by cmd/sender, which does reject them.
func ValidUID(s string) bool {
	return s != "" && len(s) <= maxUIDLength && uidPattern.MatchString(s)
}

// Header is the subset of object metadata the gateway core consumes.
type Header struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	Modality          string
	SeriesDescription string
	PatientID         string
	PatientName       string
}

// Object is a decoded image object: header fields plus opaque pixel data.
type Object struct {
	Header
	PixelData []byte
}

// StudyUIDOrUnknown returns StudyInstanceUID, or the literal "unknown" if
// unset, per spec.md §4.D step 1.
func (h Header) StudyUIDOrUnknown() string {
	if h.StudyInstanceUID == "" {
		return "unknown"
	}
	return h.StudyInstanceUID
}

// SOPUIDOrUnknown returns SOPInstanceUID, or the literal "unknown" if unset.
func (h Header) SOPUIDOrUnknown() string {
	if h.SOPInstanceUID == "" {
		return "unknown"
	}
	return h.SOPInstanceUID
}

func (o *Object) validate() error {
	if o == nil {
		return fmt.Errorf("dcmobject: nil object")
	}
	return nil
}
