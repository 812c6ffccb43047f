package hashio

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
)

// SHA1 hashes the given file with crypto.SHA1 and returns the checksum as a
// base-16 (hex) string.
func SHA1(filename string) (string, error) {
	h := sha1.New()
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
