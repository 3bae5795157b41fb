// Package core defines core types with zero external dependencies.
package core

import (
	"encoding/binary"
	"fmt"
)

// FrameKind is the 802.11 frame class reported by the radio. The numeric
// values are the ones carried on the wire.
type FrameKind uint8

const (
	KindManagement FrameKind = 0
	KindControl    FrameKind = 1
	KindData       FrameKind = 2
	KindOther      FrameKind = 3
)

// NumKinds sizes per-kind counter arrays.
const NumKinds = 4

func (k FrameKind) String() string {
	switch k {
	case KindManagement:
		return "mgmt"
	case KindControl:
		return "ctrl"
	case KindData:
		return "data"
	default:
		return "other"
	}
}

// Forwarded reports whether frames of this kind pass the capture filter.
func (k FrameKind) Forwarded() bool {
	return k == KindManagement || k == KindData
}

const (
	// InspectLen caps the payload prefix retained per captured frame.
	InspectLen = 32
	// PrefixLen is the default payload prefix relayed to the peer.
	PrefixLen = 20
)

// CapturedFrame is a view of one radio capture event. Payload aliases driver
// memory that is reclaimed as soon as the receive callback returns; use
// Clone to keep it.
type CapturedFrame struct {
	Channel uint8
	RSSI    int8
	Length  uint16 // on-air length, may exceed len(Payload)
	Kind    FrameKind
	Payload []byte // at most InspectLen bytes
}

// Clone copies the frame into owned storage.
func (f *CapturedFrame) Clone() CapturedFrame {
	c := *f
	c.Payload = append([]byte(nil), f.Payload...)
	return c
}

// MetadataSize is the encoded size of a MetadataRecord.
const MetadataSize = 9

// MetadataRecord is the fixed-layout per-frame summary sent ahead of the
// payload prefix.
type MetadataRecord struct {
	Channel     uint8
	RSSI        int8
	Length      uint16
	Kind        FrameKind
	TimestampMs uint32
}

// NewMetadataRecord builds the record for f stamped with ts.
func NewMetadataRecord(f *CapturedFrame, ts uint32) MetadataRecord {
	return MetadataRecord{
		Channel:     f.Channel,
		RSSI:        f.RSSI,
		Length:      f.Length,
		Kind:        f.Kind,
		TimestampMs: ts,
	}
}

// AppendBinary appends the 9-byte little-endian encoding:
// channel:u8, rssi:i8, length:u16, kind:u8, timestamp_ms:u32.
func (r MetadataRecord) AppendBinary(b []byte) []byte {
	b = append(b, r.Channel, byte(r.RSSI))
	b = binary.LittleEndian.AppendUint16(b, r.Length)
	b = append(b, byte(r.Kind))
	return binary.LittleEndian.AppendUint32(b, r.TimestampMs)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r MetadataRecord) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, MetadataSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *MetadataRecord) UnmarshalBinary(b []byte) error {
	if len(b) != MetadataSize {
		return fmt.Errorf("metadata record: want %d bytes, got %d", MetadataSize, len(b))
	}
	r.Channel = b[0]
	r.RSSI = int8(b[1])
	r.Length = binary.LittleEndian.Uint16(b[2:4])
	r.Kind = FrameKind(b[4])
	r.TimestampMs = binary.LittleEndian.Uint32(b[5:9])
	return nil
}
