package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// dumpHex writes length bytes of file starting at offset as a hex and ASCII
// listing, 16 bytes per line.
func dumpHex(out io.Writer, file string, offset int64, length int) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.WithMessage(err, "failed to open file")
	}
	defer func() { _ = f.Close() }()

	fileInfo, err := f.Stat()
	if err != nil {
		return errors.WithMessage(err, "failed to get file info")
	}
	fileSize := fileInfo.Size()

	if offset < 0 || offset >= fileSize {
		return errors.Errorf("invalid offset: %d (file size: %d)", offset, fileSize)
	}

	readLength := int64(length)
	if remaining := fileSize - offset; readLength > remaining {
		readLength = remaining
	}

	buf := make([]byte, readLength)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read error (read %d of %d bytes)", n, readLength)
	}

	fmt.Fprintf(out, "Dumping %d bytes at offset 0x%x (%d) of %s (size: %d bytes):\n",
		n, offset, offset, file, fileSize)

	for i := 0; i < n; i += 16 {
		end := i + 16
		if end > n {
			end = n
		}
		chunk := buf[i:end]

		fmt.Fprintf(out, "%08x: ", offset+int64(i))
		for j := 0; j < 16; j++ {
			if j < len(chunk) {
				fmt.Fprintf(out, "%02x ", chunk[j])
			} else {
				fmt.Fprint(out, "   ")
			}
			if j == 7 {
				fmt.Fprint(out, " ")
			}
		}
		fmt.Fprint(out, " |")

		for _, b := range chunk {
			if b >= 32 && b <= 126 {
				fmt.Fprintf(out, "%c", b)
			} else {
				fmt.Fprint(out, ".")
			}
		}
		fmt.Fprintln(out, "|")
	}
	return nil
}
