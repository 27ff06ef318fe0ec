package serial

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a snapshot file or stored key does not exist.
var ErrNotFound = errors.New("not found")

// FormatError reports malformed or structurally incomplete snapshot bytes.
type FormatError struct {
	Format string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s snapshot: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s snapshot: %s", e.Format, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IntegrityError reports a binary snapshot whose checksum does not match its
// payload.
type IntegrityError struct {
	Expected []byte
	Actual   []byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("binary snapshot: checksum mismatch: stored %s, computed %s",
		hex.EncodeToString(e.Expected), hex.EncodeToString(e.Actual))
}

// VersionError reports a snapshot whose major version differs from the one
// the serializer expects.
type VersionError struct {
	Version       string
	ExpectedMajor int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("snapshot version %q incompatible with major version %d", e.Version, e.ExpectedMajor)
}
