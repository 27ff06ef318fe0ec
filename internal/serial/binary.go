package serial

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"golang.org/x/crypto/blake2b"
)

// Magic is the first four bytes of every binary snapshot, "ECSB" read as a
// big-endian uint32.
const Magic uint32 = 0x45435342

// ChecksumSize is the length of the trailing BLAKE2b digest.
const ChecksumSize = 8

// BinaryFormat is the compact snapshot encoding:
//
//	magic      uint32 BE  "ECSB"
//	version    uint16 length + bytes
//	entities   uint32 count, then per entity:
//	  id         uint64
//	  components uint32 count, then per component:
//	    type       uint16 length + bytes
//	    data       uint32 length + compact JSON
//	checksum   8-byte BLAKE2b over every preceding byte
type BinaryFormat struct{}

func (f *BinaryFormat) Name() string      { return "binary" }
func (f *BinaryFormat) Extension() string { return ".ecsb" }

func checksum(b []byte) []byte {
	h, err := blake2b.New(ChecksumSize, nil)
	if err != nil {
		// only fails for an invalid size or key
		panic(err)
	}
	h.Write(b)
	return h.Sum(nil)
}

func (f *BinaryFormat) Serialize(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, &FormatError{Format: f.Name(), Reason: "nil snapshot"}
	}
	if len(s.Version) > math.MaxUint16 {
		return nil, &FormatError{Format: f.Name(), Reason: "version string too long"}
	}
	w := newWireWriter(64 + s.Stats.EstimatedSize)
	w.WriteU32(Magic)
	w.WriteString(s.Version)
	w.WriteU32(uint32(len(s.Entities)))
	for _, e := range s.Entities {
		w.WriteU64(uint64(e.ID))
		w.WriteU32(uint32(len(e.Components)))
		for _, c := range e.Components {
			if len(c.Type) > math.MaxUint16 {
				return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("component type of entity %d too long", e.ID)}
			}
			data, err := compactJSON(c.Data)
			if err != nil {
				return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("entity %d %s data", e.ID, c.Type), Err: err}
			}
			w.WriteString(c.Type)
			w.WriteBlob(data)
		}
	}
	w.WriteBytes(checksum(w.Bytes()))
	return w.Bytes(), nil
}

func (f *BinaryFormat) Deserialize(data []byte) (*Snapshot, error) {
	if len(data) < 4+ChecksumSize {
		return nil, &FormatError{Format: f.Name(), Reason: "data too short"}
	}
	if binary.BigEndian.Uint32(data) != Magic {
		return nil, &FormatError{Format: f.Name(), Reason: "bad magic"}
	}
	body := data[:len(data)-ChecksumSize]
	stored := data[len(data)-ChecksumSize:]
	if sum := checksum(body); !bytes.Equal(sum, stored) {
		return nil, &IntegrityError{Expected: bytes.Clone(stored), Actual: sum}
	}

	r := newWireReader(body)
	r.ReadU32() // magic
	version := r.ReadString()
	count := r.ReadU32()
	if r.Err() == nil && int64(count) > int64(r.Remaining()) {
		return nil, &FormatError{Format: f.Name(), Reason: "entity count exceeds payload"}
	}
	entities := make([]EntityRecord, 0, count)
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		rec := EntityRecord{ID: ecs.EntityID(r.ReadU64())}
		n := r.ReadU32()
		if r.Err() == nil && int64(n) > int64(r.Remaining()) {
			return nil, &FormatError{Format: f.Name(), Reason: "component count exceeds payload"}
		}
		rec.Components = make([]ComponentRecord, 0, n)
		for j := uint32(0); j < n && r.Err() == nil; j++ {
			typ := r.ReadString()
			payload := r.ReadBlob()
			if r.Err() != nil {
				break
			}
			if typ == "" {
				return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("entity %d has a component without type", rec.ID)}
			}
			if !json.Valid(payload) {
				return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("entity %d %s data is not JSON", rec.ID, typ)}
			}
			rec.Components = append(rec.Components, ComponentRecord{Type: typ, Data: payload})
		}
		entities = append(entities, rec)
	}
	if err := r.Err(); err != nil {
		return nil, &FormatError{Format: f.Name(), Reason: "truncated payload", Err: err}
	}
	if r.Remaining() != 0 {
		return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("%d trailing bytes", r.Remaining())}
	}
	return newSnapshot(version, entities), nil
}

func (f *BinaryFormat) Validate(data []byte) bool {
	_, err := f.Deserialize(data)
	return err == nil
}

func compactJSON(data json.RawMessage) ([]byte, error) {
	if len(data) == 0 {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
