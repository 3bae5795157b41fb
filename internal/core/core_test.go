package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRecordLayout(t *testing.T) {
	rec := MetadataRecord{
		Channel:     6,
		RSSI:        -40,
		Length:      0x0102,
		Kind:        KindData,
		TimestampMs: 0x0A0B0C0D,
	}

	b, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{6, 0xD8, 0x02, 0x01, 2, 0x0D, 0x0C, 0x0B, 0x0A}, b)

	var back MetadataRecord
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, rec, back)
}

func TestMetadataRecordUnmarshalShort(t *testing.T) {
	var rec MetadataRecord
	err := rec.UnmarshalBinary([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewMetadataRecord(t *testing.T) {
	f := &CapturedFrame{Channel: 11, RSSI: -70, Length: 300, Kind: KindManagement, Payload: []byte{0x80}}
	rec := NewMetadataRecord(f, 1234)
	assert.Equal(t, MetadataRecord{Channel: 11, RSSI: -70, Length: 300, Kind: KindManagement, TimestampMs: 1234}, rec)
}

func TestCapturedFrameClone(t *testing.T) {
	buf := []byte{1, 2, 3}
	f := &CapturedFrame{Payload: buf}
	c := f.Clone()
	buf[0] = 9
	assert.Equal(t, byte(1), c.Payload[0], "clone must not alias driver memory")
}

func TestFrameKindForwarded(t *testing.T) {
	assert.True(t, KindManagement.Forwarded())
	assert.True(t, KindData.Forwarded())
	assert.False(t, KindControl.Forwarded())
	assert.False(t, KindOther.Forwarded())
	assert.Equal(t, "mgmt", KindManagement.String())
	assert.Equal(t, "other", FrameKind(7).String())
}

func TestChannelFrequency(t *testing.T) {
	tests := []struct {
		ch   uint8
		freq int
	}{
		{1, 2412},
		{6, 2437},
		{13, 2472},
		{14, 2484},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.freq, ChannelFrequency(tt.ch))
		assert.Equal(t, tt.ch, FrequencyChannel(tt.freq))
	}
	assert.Equal(t, uint8(36), FrequencyChannel(5180))
	assert.Equal(t, uint8(0), FrequencyChannel(900))
}

func TestValidChannel(t *testing.T) {
	assert.False(t, ValidChannel(0))
	assert.True(t, ValidChannel(1))
	assert.True(t, ValidChannel(14))
	assert.False(t, ValidChannel(15))
}

func TestMonotonicClock(t *testing.T) {
	c := NewMonotonicClock()
	a := c.Millis()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Millis(), a+5)
}

func TestConnectionStateConnected(t *testing.T) {
	assert.False(t, ConnectionState{Phase: PhaseAdvertising}.Connected())
	assert.True(t, ConnectionState{Phase: PhaseConnected}.Connected())
	assert.Equal(t, "advertising", PhaseAdvertising.String())
}
