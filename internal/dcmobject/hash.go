package dcmobject

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ContentHash returns the hex-encoded blake3 digest of the file at
// path, used to fingerprint a stored object on the audit log. Digests
// are not compared, so duplicate receives are not detected.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
