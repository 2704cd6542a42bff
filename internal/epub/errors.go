package epub

import "errors"

var (
	// ErrInvalidEPUB means the payload is not a readable EPUB archive.
	ErrInvalidEPUB = errors.New("epub: invalid EPUB file")

	// ErrNoCover means no cover image could be located.
	ErrNoCover = errors.New("epub: no cover image found")

	// ErrFileNotFound means an archive entry referenced by the package is missing.
	ErrFileNotFound = errors.New("epub: file not found in archive")
)
