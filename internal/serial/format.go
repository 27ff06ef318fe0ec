package serial

import "fmt"

// Format encodes snapshots to bytes and back.
type Format interface {
	Name() string
	Extension() string
	Serialize(s *Snapshot) ([]byte, error)
	// Deserialize fails with *FormatError on malformed input; BinaryFormat
	// also fails with *IntegrityError on a checksum mismatch.
	Deserialize(data []byte) (*Snapshot, error)
	// Validate reports whether Deserialize would succeed.
	Validate(data []byte) bool
}

// FormatByName returns the codec for "json" or "binary".
func FormatByName(name string, prettyPrint bool) (Format, error) {
	switch name {
	case "json", "":
		return &JSONFormat{PrettyPrint: prettyPrint}, nil
	case "binary":
		return &BinaryFormat{}, nil
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", name)
	}
}
