// Package wire decodes the binary frames received from the simulation
// network. Frames are protobuf-encoded against a fixed schema: a traffic
// frame is a repeated list of aircraft records, a waypoint frame a repeated
// list of touchdown waypoints. Decoding is done directly with protowire so
// malformed records can be skipped individually without aborting the frame.
package wire

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Traffic frame schema (field numbers are fixed by the network protocol):
//
//	TrafficFrame { repeated Aircraft aircraft = 1; }
//	Aircraft {
//	    uint32 network_id    = 1;
//	    string callsign      = 2;
//	    uint32 reporter_id   = 3;
//	    double x             = 4;
//	    double y             = 5;
//	    double heading       = 6;
//	    double altitude      = 7;
//	    double ground_speed  = 8;
//	    string model         = 9;
//	    string livery        = 10;
//	}
//
//	WaypointFrame { repeated Waypoint waypoints = 1; }
//	Waypoint {
//	    double x         = 1;
//	    double y         = 2;
//	    string airport   = 3;
//	    string runway    = 4;
//	    double value     = 5;
//	    int64  timestamp = 6;  // unix seconds
//	}

// AircraftRecord is one decoded aircraft position report
type AircraftRecord struct {
	NetworkID   uint32
	Callsign    string
	ReporterID  uint32
	X           float64
	Y           float64
	Heading     float64
	AltitudeFt  float64
	GroundSpeed float64
	Model       string
	Livery      string
}

// WaypointRecord is one decoded touchdown waypoint report
type WaypointRecord struct {
	X         float64
	Y         float64
	Airport   string
	Runway    string
	Value     float64
	Timestamp time.Time
}

// aircraft record fields that must be present for the record to be usable
const (
	seenReporter = 1 << iota
	seenX
	seenY
	seenAltitude
	seenSpeed
)

const requiredAircraftFields = seenReporter | seenX | seenY | seenAltitude | seenSpeed

// DecodeTrafficFrame decodes a traffic frame. Individual records that fail
// to decode or are missing required numeric fields are dropped; the count
// of dropped records is returned alongside the good ones. A frame-level
// decode error is returned only when the outer message itself is malformed.
func DecodeTrafficFrame(data []byte) ([]AircraftRecord, int, error) {
	var records []AircraftRecord
	skipped := 0

	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num != 1 || typ != protowire.BytesType {
			return nil // unknown top-level field, ignore
		}
		rec, err := decodeAircraft(payload)
		if err != nil {
			skipped++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("malformed traffic frame: %w", err)
	}
	return records, skipped, nil
}

// DecodeWaypointFrame decodes a waypoint frame with the same per-record
// isolation as DecodeTrafficFrame.
func DecodeWaypointFrame(data []byte) ([]WaypointRecord, int, error) {
	var records []WaypointRecord
	skipped := 0

	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		rec, err := decodeWaypoint(payload)
		if err != nil {
			skipped++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("malformed waypoint frame: %w", err)
	}
	return records, skipped, nil
}

func decodeAircraft(data []byte) (AircraftRecord, error) {
	var rec AircraftRecord
	seen := 0

	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case 1:
			v, err := asUint32(typ, payload)
			if err != nil {
				return err
			}
			rec.NetworkID = v
		case 2:
			rec.Callsign = string(payload)
		case 3:
			v, err := asUint32(typ, payload)
			if err != nil {
				return err
			}
			rec.ReporterID = v
			seen |= seenReporter
		case 4:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.X = v
			seen |= seenX
		case 5:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.Y = v
			seen |= seenY
		case 6:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.Heading = v
		case 7:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.AltitudeFt = v
			seen |= seenAltitude
		case 8:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.GroundSpeed = v
			seen |= seenSpeed
		case 9:
			rec.Model = string(payload)
		case 10:
			rec.Livery = string(payload)
		}
		return nil
	})
	if err != nil {
		return AircraftRecord{}, err
	}
	if seen&requiredAircraftFields != requiredAircraftFields {
		return AircraftRecord{}, fmt.Errorf("aircraft record missing required fields (mask %#x)", seen)
	}
	return rec, nil
}

func decodeWaypoint(data []byte) (WaypointRecord, error) {
	var rec WaypointRecord
	seenPos := false
	seenTime := false

	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case 1:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.X = v
			seenPos = true
		case 2:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.Y = v
		case 3:
			rec.Airport = string(payload)
		case 4:
			rec.Runway = string(payload)
		case 5:
			v, err := asDouble(typ, payload)
			if err != nil {
				return err
			}
			rec.Value = v
		case 6:
			if typ != protowire.VarintType {
				return fmt.Errorf("timestamp: unexpected wire type %v", typ)
			}
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return protowire.ParseError(n)
			}
			rec.Timestamp = time.Unix(int64(v), 0).UTC()
			seenTime = true
		}
		return nil
	})
	if err != nil {
		return WaypointRecord{}, err
	}
	if !seenPos || !seenTime {
		return WaypointRecord{}, fmt.Errorf("waypoint record missing position or timestamp")
	}
	return rec, nil
}

// eachField walks every top-level field of a protobuf message, handing the
// raw payload to fn. For bytes fields payload is the field content; for
// scalar fields payload is the undecoded remainder starting at the value.
func eachField(data []byte, fn func(num protowire.Number, typ protowire.Type, payload []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.BytesType:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, payload); err != nil {
				return err
			}
			data = data[n:]
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, data[:n]); err != nil {
				return err
			}
			data = data[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, data[:n]); err != nil {
				return err
			}
			data = data[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, data[:n]); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func asDouble(typ protowire.Type, payload []byte) (float64, error) {
	if typ != protowire.Fixed64Type {
		return 0, fmt.Errorf("expected fixed64, got wire type %v", typ)
	}
	bits, n := protowire.ConsumeFixed64(payload)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return math.Float64frombits(bits), nil
}

func asUint32(typ protowire.Type, payload []byte) (uint32, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("expected varint, got wire type %v", typ)
	}
	v, n := protowire.ConsumeVarint(payload)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return uint32(v), nil
}
