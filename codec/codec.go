// Package codec implements the tagged, length-framed byte encoding used to
// store values in the L2 tier and to serialize invalidation events on the
// channel transport. It is deliberately not a generic reflection-based
// serializer: the tag set is fixed, and anything outside it falls through to
// a framed, msgpack-encoded OBJECT payload.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/vmihailenco/msgpack/v5"
)

// Tag identifies the shape of the payload that follows it.
type Tag byte

const (
	TagString  Tag = 1
	TagBool    Tag = 2
	TagInt8    Tag = 3
	TagInt16   Tag = 4
	TagInt32   Tag = 5
	TagInt64   Tag = 6
	TagFloat32 Tag = 7
	TagFloat64 Tag = 8
	TagBytes   Tag = 9
	TagDate    Tag = 10
	TagObject  Tag = 11
)

// compressThreshold is the minimum OBJECT payload size, in bytes, before an
// s2 pass is worth the CPU. Below it framing overhead dominates.
const compressThreshold = 256

const (
	objectFlagPlain   byte = 0
	objectFlagPacked  byte = 1
)

var (
	// ErrUnsupportedType is returned when Encode is given a value outside the
	// fixed tag set and msgpack also can't frame it as an OBJECT.
	ErrUnsupportedType = errors.New("codec: unsupported value type")
	// ErrTruncated is returned when a byte string is shorter than its own
	// length prefix claims.
	ErrTruncated = errors.New("codec: truncated frame")
	// ErrUnknownTag is returned on a tag byte outside the enumerated set.
	ErrUnknownTag = errors.New("codec: unknown tag byte")
	// ErrTargetMismatch is returned when the decode target's type doesn't
	// match the tag found in the frame.
	ErrTargetMismatch = errors.New("codec: decode target does not match tag")
)

// Encode converts v into a self-describing byte string: one tag byte
// followed by a framed payload. Encode(nil) returns (nil, nil) — callers
// MUST treat that as a request to evict rather than to store an empty value.
func Encode(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		return frameBytes(TagString, []byte(x)), nil
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		return []byte{byte(TagBool), b}, nil
	case int8:
		return []byte{byte(TagInt8), byte(x)}, nil
	case int16:
		buf := make([]byte, 3)
		buf[0] = byte(TagInt16)
		binary.BigEndian.PutUint16(buf[1:], uint16(x))
		return buf, nil
	case int32:
		buf := make([]byte, 5)
		buf[0] = byte(TagInt32)
		binary.BigEndian.PutUint32(buf[1:], uint32(x))
		return buf, nil
	case int:
		buf := make([]byte, 9)
		buf[0] = byte(TagInt64)
		binary.BigEndian.PutUint64(buf[1:], uint64(x))
		return buf, nil
	case int64:
		buf := make([]byte, 9)
		buf[0] = byte(TagInt64)
		binary.BigEndian.PutUint64(buf[1:], uint64(x))
		return buf, nil
	case float32:
		buf := make([]byte, 5)
		buf[0] = byte(TagFloat32)
		binary.BigEndian.PutUint32(buf[1:], math.Float32bits(x))
		return buf, nil
	case float64:
		buf := make([]byte, 9)
		buf[0] = byte(TagFloat64)
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(x))
		return buf, nil
	case []byte:
		return frameBytes(TagBytes, x), nil
	case time.Time:
		buf := make([]byte, 9)
		buf[0] = byte(TagDate)
		binary.BigEndian.PutUint64(buf[1:], uint64(x.UnixMilli()))
		return buf, nil
	default:
		return encodeObject(x)
	}
}

// Decode inverts Encode into target, which must be a pointer of a type
// matching the tag stored in b (or *interface{}, which accepts any tag).
// Decode on a nil/empty b is a caller error: the codec never produced such a
// frame for a non-nil value, and nil values are never encoded in the first
// place.
func Decode(b []byte, target interface{}) error {
	if len(b) == 0 {
		return ErrTruncated
	}
	tag := Tag(b[0])
	payload := b[1:]
	switch tag {
	case TagString:
		raw, err := unframeBytes(payload)
		if err != nil {
			return err
		}
		return assignString(string(raw), target)
	case TagBool:
		if len(payload) < 1 {
			return ErrTruncated
		}
		return assignBool(payload[0] != 0, target)
	case TagInt8:
		if len(payload) < 1 {
			return ErrTruncated
		}
		return assignInt64(int64(int8(payload[0])), target)
	case TagInt16:
		if len(payload) < 2 {
			return ErrTruncated
		}
		return assignInt64(int64(int16(binary.BigEndian.Uint16(payload))), target)
	case TagInt32:
		if len(payload) < 4 {
			return ErrTruncated
		}
		return assignInt64(int64(int32(binary.BigEndian.Uint32(payload))), target)
	case TagInt64:
		if len(payload) < 8 {
			return ErrTruncated
		}
		return assignInt64(int64(binary.BigEndian.Uint64(payload)), target)
	case TagFloat32:
		if len(payload) < 4 {
			return ErrTruncated
		}
		return assignFloat64(float64(math.Float32frombits(binary.BigEndian.Uint32(payload))), target)
	case TagFloat64:
		if len(payload) < 8 {
			return ErrTruncated
		}
		return assignFloat64(math.Float64frombits(binary.BigEndian.Uint64(payload)), target)
	case TagBytes:
		raw, err := unframeBytes(payload)
		if err != nil {
			return err
		}
		return assignBytes(raw, target)
	case TagDate:
		if len(payload) < 8 {
			return ErrTruncated
		}
		ms := int64(binary.BigEndian.Uint64(payload))
		return assignTime(time.UnixMilli(ms), target)
	case TagObject:
		return decodeObject(payload, target)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

func frameBytes(tag Tag, data []byte) []byte {
	buf := make([]byte, 5+len(data))
	buf[0] = byte(tag)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(data)))
	copy(buf[5:], data)
	return buf
}

func unframeBytes(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, ErrTruncated
	}
	n := binary.BigEndian.Uint32(payload[:4])
	if uint32(len(payload)-4) < n {
		return nil, ErrTruncated
	}
	return payload[4 : 4+n], nil
}

// encodeObject frames v as an OBJECT: a flag byte, a length prefix, and a
// msgpack payload, s2-compressed when it's large enough to be worth it.
func encodeObject(v interface{}) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	flag := objectFlagPlain
	payload := raw
	if len(raw) >= compressThreshold {
		packed := s2.Encode(nil, raw)
		if len(packed) < len(raw) {
			flag = objectFlagPacked
			payload = packed
		}
	}
	buf := make([]byte, 2+4+len(payload))
	buf[0] = byte(TagObject)
	buf[1] = flag
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[6:], payload)
	return buf, nil
}

func decodeObject(payload []byte, target interface{}) error {
	if len(payload) < 5 {
		return ErrTruncated
	}
	flag := payload[0]
	n := binary.BigEndian.Uint32(payload[1:5])
	body := payload[5:]
	if uint32(len(body)) < n {
		return ErrTruncated
	}
	body = body[:n]
	if flag == objectFlagPacked {
		decoded, err := s2.Decode(nil, body)
		if err != nil {
			return fmt.Errorf("codec: s2 decode: %w", err)
		}
		body = decoded
	}
	if err := msgpack.Unmarshal(body, target); err != nil {
		return fmt.Errorf("codec: msgpack decode: %w", err)
	}
	return nil
}

func assignString(v string, target interface{}) error {
	switch t := target.(type) {
	case *string:
		*t = v
		return nil
	case *interface{}:
		*t = v
		return nil
	default:
		return fmt.Errorf("%w: string into %T", ErrTargetMismatch, target)
	}
}

func assignBool(v bool, target interface{}) error {
	switch t := target.(type) {
	case *bool:
		*t = v
		return nil
	case *interface{}:
		*t = v
		return nil
	default:
		return fmt.Errorf("%w: bool into %T", ErrTargetMismatch, target)
	}
}

func assignInt64(v int64, target interface{}) error {
	switch t := target.(type) {
	case *int8:
		*t = int8(v)
	case *int16:
		*t = int16(v)
	case *int32:
		*t = int32(v)
	case *int64:
		*t = v
	case *int:
		*t = int(v)
	case *interface{}:
		*t = v
	default:
		return fmt.Errorf("%w: int into %T", ErrTargetMismatch, target)
	}
	return nil
}

func assignFloat64(v float64, target interface{}) error {
	switch t := target.(type) {
	case *float32:
		*t = float32(v)
	case *float64:
		*t = v
	case *interface{}:
		*t = v
	default:
		return fmt.Errorf("%w: float into %T", ErrTargetMismatch, target)
	}
	return nil
}

func assignBytes(v []byte, target interface{}) error {
	switch t := target.(type) {
	case *[]byte:
		clone := make([]byte, len(v))
		copy(clone, v)
		*t = clone
	case *interface{}:
		clone := make([]byte, len(v))
		copy(clone, v)
		*t = clone
	default:
		return fmt.Errorf("%w: bytes into %T", ErrTargetMismatch, target)
	}
	return nil
}

func assignTime(v time.Time, target interface{}) error {
	switch t := target.(type) {
	case *time.Time:
		*t = v
	case *interface{}:
		*t = v
	default:
		return fmt.Errorf("%w: date into %T", ErrTargetMismatch, target)
	}
	return nil
}
