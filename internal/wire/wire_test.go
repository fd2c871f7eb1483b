package wire

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) varint(num protowire.Number, v uint64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *fieldWriter) double(num protowire.Number, v float64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.Fixed64Type)
	w.buf = protowire.AppendFixed64(w.buf, math.Float64bits(v))
}

func (w *fieldWriter) str(num protowire.Number, s string) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, []byte(s))
}

func encodeAircraft(networkID uint32, callsign string, reporterID uint32, x, y, heading, alt, speed float64) []byte {
	var w fieldWriter
	w.varint(1, uint64(networkID))
	w.str(2, callsign)
	w.varint(3, uint64(reporterID))
	w.double(4, x)
	w.double(5, y)
	w.double(6, heading)
	w.double(7, alt)
	w.double(8, speed)
	return w.buf
}

func wrapFrame(records ...[]byte) []byte {
	var w fieldWriter
	for _, rec := range records {
		w.buf = protowire.AppendTag(w.buf, 1, protowire.BytesType)
		w.buf = protowire.AppendBytes(w.buf, rec)
	}
	return w.buf
}

func TestDecodeTrafficFrame(t *testing.T) {
	frame := wrapFrame(
		encodeAircraft(7, "ABC123", 42, 1000, -2000, 270, 3500, 180),
		encodeAircraft(7, "DEF456", 43, 50, 60, 90, 12, 0),
	)

	records, skipped, err := DecodeTrafficFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, records, 2)

	assert.Equal(t, uint32(7), records[0].NetworkID)
	assert.Equal(t, "ABC123", records[0].Callsign)
	assert.Equal(t, uint32(42), records[0].ReporterID)
	assert.Equal(t, 1000.0, records[0].X)
	assert.Equal(t, -2000.0, records[0].Y)
	assert.Equal(t, 270.0, records[0].Heading)
	assert.Equal(t, 3500.0, records[0].AltitudeFt)
	assert.Equal(t, 180.0, records[0].GroundSpeed)
	assert.Equal(t, uint32(43), records[1].ReporterID)
}

func TestDecodeTrafficFrameSkipsIncompleteRecords(t *testing.T) {
	// Second record lacks the x/y position fields
	var incomplete fieldWriter
	incomplete.varint(1, 7)
	incomplete.varint(3, 99)
	incomplete.double(7, 1000)
	incomplete.double(8, 120)

	frame := wrapFrame(
		encodeAircraft(7, "ABC123", 42, 1, 2, 3, 4, 5),
		incomplete.buf,
	)

	records, skipped, err := DecodeTrafficFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(42), records[0].ReporterID)
}

func TestDecodeTrafficFrameMalformedOuter(t *testing.T) {
	_, _, err := DecodeTrafficFrame([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestDecodeTrafficFrameEmpty(t *testing.T) {
	records, skipped, err := DecodeTrafficFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Empty(t, records)
}

func TestDecodeTrafficFrameIgnoresUnknownFields(t *testing.T) {
	var rec fieldWriter
	rec.varint(1, 7)
	rec.varint(3, 42)
	rec.double(4, 1)
	rec.double(5, 2)
	rec.double(7, 3)
	rec.double(8, 4)
	rec.varint(57, 12345) // unknown field from a newer protocol revision

	records, skipped, err := DecodeTrafficFrame(wrapFrame(rec.buf))
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(42), records[0].ReporterID)
}

func encodeWaypoint(x, y float64, airport, runway string, value float64, ts int64) []byte {
	var w fieldWriter
	w.double(1, x)
	w.double(2, y)
	w.str(3, airport)
	w.str(4, runway)
	w.double(5, value)
	w.varint(6, uint64(ts))
	return w.buf
}

func TestDecodeWaypointFrame(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	frame := wrapFrame(encodeWaypoint(100, 200, "SFD", "24R", -385.5, ts.Unix()))

	records, skipped, err := DecodeWaypointFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, records, 1)

	wp := records[0]
	assert.Equal(t, 100.0, wp.X)
	assert.Equal(t, 200.0, wp.Y)
	assert.Equal(t, "SFD", wp.Airport)
	assert.Equal(t, "24R", wp.Runway)
	assert.Equal(t, -385.5, wp.Value)
	assert.True(t, wp.Timestamp.Equal(ts))
}

func TestDecodeWaypointFrameRequiresPositionAndTimestamp(t *testing.T) {
	var noTime fieldWriter
	noTime.double(1, 100)
	noTime.double(5, -300)

	records, skipped, err := DecodeWaypointFrame(wrapFrame(noTime.buf))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Empty(t, records)
}
