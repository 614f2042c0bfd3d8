package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// PartSuffix names the optional temp file recommended by §6: downloads
// stream into "<target>.swiftget-part" and an atomic rename publishes the
// final bytes, so partial output is never visible under the final name.
const PartSuffix = ".swiftget-part"

// PartPath returns the temp path a download streams into before the
// publishing rename.
func PartPath(targetPath string) string {
	return targetPath + PartSuffix
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the size of the file at path.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// PreallocateSparse creates (or truncates) path and extends it to size
// bytes as a sparse extent (§4.8 step 5: "preallocate target to
// contentLength"), so concurrent workers can pwrite into their own byte
// windows without racing on file growth.
func PreallocateSparse(path string, size int64) (err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create part file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("preallocate part file: %w", err)
	}
	return nil
}

// ValidatePartialFile checks that a part file below is a plausible resume
// candidate: present, readable/writable, and not larger than the expected
// final size (§6: "existence + size of the target ... is the resume key").
func ValidatePartialFile(partPath string, expectedSize int64) error {
	info, err := os.Stat(partPath)
	if err != nil {
		return err
	}
	if info.Size() > expectedSize {
		return fmt.Errorf("partial file size (%d) exceeds expected size (%d)", info.Size(), expectedSize)
	}
	file, err := os.OpenFile(partPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("cannot access partial file: %w", err)
	}
	return file.Close()
}

// AtomicRename publishes a finished download, renaming the temp part path
// to its final target path. Both paths must reside on the same filesystem
// for the rename to be atomic, which PartPath's same-directory convention
// guarantees.
func AtomicRename(partPath, targetPath string) error {
	return os.Rename(partPath, targetPath)
}

// RemoveIfExists deletes path, treating a missing file as success. The
// coordinator's fallback, abort and cancellation paths do not call it; they
// leave the part file in place.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
