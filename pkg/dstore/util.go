package dstore

// Utility functions common to all dstore backends

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
)

// CopyFile copies a regular file from src to dst (basically the posix
// 'cp' command). dst is created or truncated with src's permissions.
func CopyFile(src, dst string) error {
	stat, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !stat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	from, err := os.Open(src)
	if err != nil {
		return err
	}
	defer from.Close()

	to, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, stat.Mode().Perm())
	if err != nil {
		return err
	}
	defer to.Close()

	_, err = io.Copy(to, from)
	return err
}

// FileSize returns the size of path, or 0 if it does not exist or cannot
// be measured.
func FileSize(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return stat.Size()
}

// FileExists reports whether path exists, regardless of type.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadRange reads count bytes of path starting at start; count < 0 reads
// through the end of the file. A missing file reads as NotFoundError.
func ReadRange(path string, start, count int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &NotFoundError{What: path}
	}
	defer f.Close()

	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return nil, err
		}
	}
	if count < 0 {
		return ioutil.ReadAll(f)
	}
	data := make([]byte, count)
	n, err := io.ReadFull(f, data)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return data[:n], nil
}
