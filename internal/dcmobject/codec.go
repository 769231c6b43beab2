package dcmobject

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var preamble = make([]byte, 128)

const magic = "DICM"

// element is an ordered (tag, value) pair as it appears on the wire.
type element struct {
	tag   Tag
	vr    string
	value []byte
}

func (o *Object) elements() []element {
	pairs := []struct {
		tag Tag
		val string
	}{
		{TagSOPClassUID, o.SOPClassUID},
		{TagSOPInstanceUID, o.SOPInstanceUID},
		{TagModality, o.Modality},
		{TagSeriesDescription, o.SeriesDescription},
		{TagPatientName, o.PatientName},
		{TagPatientID, o.PatientID},
		{TagStudyInstanceUID, o.StudyInstanceUID},
		{TagSeriesInstanceUID, o.SeriesInstanceUID},
	}
	out := make([]element, 0, len(pairs)+1)
	for _, p := range pairs {
		if p.val == "" {
			continue
		}
		out = append(out, element{tag: p.tag, vr: vrOf(p.tag), value: padEven([]byte(p.val), p.tag)})
	}
	out = append(out, element{tag: TagPixelData, vr: "OB", value: padEven(o.PixelData, TagPixelData)})
	return out
}

// padEven right-pads odd-length values as the DICOM encoding rules
// require: a trailing space for string VRs, a trailing null byte for
// binary VRs such as PixelData.
func padEven(v []byte, t Tag) []byte {
	if len(v)%2 == 0 {
		return v
	}
	pad := byte(' ')
	if t == TagPixelData {
		pad = 0x00
	}
	return append(append([]byte{}, v...), pad)
}

func writeElement(w io.Writer, e element) error {
	if err := binary.Write(w, binary.LittleEndian, e.tag.Group); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, e.tag.Element); err != nil {
		return err
	}
	if _, err := w.Write([]byte(e.vr)); err != nil {
		return err
	}
	if isLongForm(e.vr) {
		if _, err := w.Write([]byte{0, 0}); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.value))); err != nil {
			return err
		}
	} else {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(e.value))); err != nil {
			return err
		}
	}
	_, err := w.Write(e.value)
	return err
}

func readElement(r io.Reader) (element, error) {
	var e element
	if err := binary.Read(r, binary.LittleEndian, &e.tag.Group); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.tag.Element); err != nil {
		return e, err
	}
	vrBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, vrBuf); err != nil {
		return e, err
	}
	e.vr = string(vrBuf)

	var length uint32
	if isLongForm(e.vr) {
		if _, err := io.ReadFull(r, make([]byte, 2)); err != nil {
			return e, err
		}
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return e, err
		}
	} else {
		var length16 uint16
		if err := binary.Read(r, binary.LittleEndian, &length16); err != nil {
			return e, err
		}
		length = uint32(length16)
	}

	e.value = make([]byte, length)
	if _, err := io.ReadFull(r, e.value); err != nil {
		return e, err
	}
	return e, nil
}

func metaGroup(o *Object) []element {
	return []element{
		{tag: TagTransferSyntaxUID, vr: "UI", value: padEven([]byte(ExplicitVRLittleEndian), TagTransferSyntaxUID)},
		{tag: TagMediaStorageSOPClass, vr: "UI", value: padEven([]byte(o.SOPClassUID), TagMediaStorageSOPClass)},
		{tag: TagMediaStorageSOPInst, vr: "UI", value: padEven([]byte(o.SOPInstanceUID), TagMediaStorageSOPInst)},
	}
}

// Write encodes obj as preamble + "DICM" + file-meta group + explicit-VR
// little-endian dataset elements.
func Write(w io.Writer, obj *Object) error {
	if err := obj.validate(); err != nil {
		return err
	}
	if _, err := w.Write(preamble); err != nil {
		return err
	}
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}

	var metaBuf bytes.Buffer
	for _, e := range metaGroup(obj) {
		if err := writeElement(&metaBuf, e); err != nil {
			return err
		}
	}
	groupLen := element{tag: TagFileMetaGroupLength, vr: "UL", value: make([]byte, 4)}
	binary.LittleEndian.PutUint32(groupLen.value, uint32(metaBuf.Len()))
	if err := writeElement(w, groupLen); err != nil {
		return err
	}
	if _, err := w.Write(metaBuf.Bytes()); err != nil {
		return err
	}

	for _, e := range obj.elements() {
		if err := writeElement(w, e); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes obj to path, creating parent directories as needed.
func WriteFile(path string, obj *Object) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := Write(bw, obj); err != nil {
		return err
	}
	return bw.Flush()
}

// Read decodes an Object from r. When stopBeforePixels is true, the
// PixelData element is read past but its bytes are not kept in the
// returned object (DICOM libraries call this "stop before pixels");
// Object.PixelData is left nil.
func Read(r io.Reader, stopBeforePixels bool) (*Object, error) {
	got := make([]byte, 128)
	if _, err := io.ReadFull(r, got); err != nil {
		return nil, fmt.Errorf("dcmobject: read preamble: %w", err)
	}
	magicBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, fmt.Errorf("dcmobject: read magic: %w", err)
	}
	if string(magicBuf) != magic {
		return nil, fmt.Errorf("dcmobject: missing DICM magic")
	}

	groupLenElem, err := readElement(r)
	if err != nil {
		return nil, fmt.Errorf("dcmobject: read meta group length: %w", err)
	}
	if groupLenElem.tag != TagFileMetaGroupLength {
		return nil, fmt.Errorf("dcmobject: expected file meta group length element")
	}
	groupLen := binary.LittleEndian.Uint32(groupLenElem.value)
	if _, err := io.CopyN(io.Discard, r, int64(groupLen)); err != nil {
		return nil, fmt.Errorf("dcmobject: skip meta group: %w", err)
	}

	obj := &Object{}
	for {
		e, err := readElement(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dcmobject: read dataset element: %w", err)
		}
		applyElement(obj, e, stopBeforePixels)
	}
	return obj, nil
}

func applyElement(obj *Object, e element, stopBeforePixels bool) {
	switch e.tag {
	case TagSOPClassUID:
		obj.SOPClassUID = trimPad(e.value)
	case TagSOPInstanceUID:
		obj.SOPInstanceUID = trimPad(e.value)
	case TagModality:
		obj.Modality = trimPad(e.value)
	case TagSeriesDescription:
		obj.SeriesDescription = trimPad(e.value)
	case TagPatientName:
		obj.PatientName = trimPad(e.value)
	case TagPatientID:
		obj.PatientID = trimPad(e.value)
	case TagStudyInstanceUID:
		obj.StudyInstanceUID = trimPad(e.value)
	case TagSeriesInstanceUID:
		obj.SeriesInstanceUID = trimPad(e.value)
	case TagPixelData:
		if !stopBeforePixels {
			obj.PixelData = append([]byte{}, e.value...)
		}
	}
}

func trimPad(v []byte) string {
	n := len(v)
	for n > 0 && (v[n-1] == ' ' || v[n-1] == 0x00) {
		n--
	}
	return string(v[:n])
}

// ReadFile decodes the full object (including pixel data) from path.
func ReadFile(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f), false)
}

// ReadHeaderFile decodes only the header fields from path, without
// materializing pixel data — used by the router, which reads headers
// "without pixel data" per spec.md §4.F.
func ReadHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obj, err := Read(bufio.NewReader(f), true)
	if err != nil {
		return nil, err
	}
	return &obj.Header, nil
}
