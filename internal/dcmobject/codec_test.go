package dcmobject

import (
	"bytes"
	"path/filepath"
	"testing"
)

func sampleObject() *Object {
	return &Object{
		Header: Header{
			StudyInstanceUID:  "1.2.3",
			SeriesInstanceUID: "1.2.3.1",
			SOPInstanceUID:    "1.2.3.4",
			SOPClassUID:       "1.2.840.10008.5.1.4.1.1.2",
			Modality:          "CT",
			SeriesDescription: "CHEST",
			PatientID:         "P001",
			PatientName:       "DOE^JANE",
		},
		PixelData: []byte{0x01, 0x02, 0x03},
	}
}

func TestWriteReadFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.2.3", "1.2.3.4.dcm")
	obj := sampleObject()

	if err := WriteFile(path, obj); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Header != obj.Header {
		t.Fatalf("header mismatch: got %+v want %+v", got.Header, obj.Header)
	}
	if !bytes.Equal(got.PixelData, obj.PixelData) {
		t.Fatalf("pixel data mismatch: got %v want %v", got.PixelData, obj.PixelData)
	}
}

func TestReadHeaderFile_DoesNotLoadPixelData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.2.3", "1.2.3.4.dcm")
	obj := sampleObject()
	if err := WriteFile(path, obj); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hdr, err := ReadHeaderFile(path)
	if err != nil {
		t.Fatalf("ReadHeaderFile: %v", err)
	}
	if *hdr != obj.Header {
		t.Fatalf("header mismatch: got %+v want %+v", *hdr, obj.Header)
	}
}

func TestValidUID(t *testing.T) {
	cases := []struct {
		uid string
		ok  bool
	}{
		{"1.2.840.10008.5.1.4.1.1.2", true},
		{"1", true},
		{"", false},
		{".1.2", false},
		{"1.2.", false},
		{"1.2.a", false},
		{"1..2", false},
	}
	for _, c := range cases {
		if got := ValidUID(c.uid); got != c.ok {
			t.Errorf("ValidUID(%q) = %v, want %v", c.uid, got, c.ok)
		}
	}
}

func TestOddLengthValuePadding_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.2.3", "1.2.3.5.dcm")
	obj := sampleObject()
	obj.Modality = "OT"
	obj.PixelData = []byte{0xAB}

	if err := WriteFile(path, obj); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got.PixelData, obj.PixelData) {
		t.Fatalf("pixel data mismatch after odd-length padding: got %v want %v", got.PixelData, obj.PixelData)
	}
}
