package testenv

import (
	"os"
	"path/filepath"
	"testing"
)

// TempFile creates a zero-filled temporary file of the given size and returns its name.
// It stands in for a device node when testing memory-mapped access.
// The file is automatically deleted during cleanup.
func TempFile(t testing.TB, size int64) (filename string) {
	filename = filepath.Join(t.TempDir(), "devmem")
	f, e := os.Create(filename)
	if e != nil {
		t.Fatal(e)
	}
	defer f.Close()
	if e = f.Truncate(size); e != nil {
		t.Fatal(e)
	}
	return filename
}
