// Created by Yanjunhui

package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// 内置编解码器 ID
// EN: Built-in codec ids.
const (
	IDInt64   = "fx:i64"
	IDInt32   = "fx:i32"
	IDFloat64 = "fx:f64"
	IDString  = "fx:string:utf8"
	IDBytes   = "fx:bytes"
	IDBool    = "fx:bool"
)

// Int64 8 字节大端，翻转符号位使负数排在前面
// EN: Int64 is big-endian with the sign bit flipped so negatives sort first.
var Int64 Codec[int64] = New(IDInt64, 1,
	func(v int64) ([]byte, error) {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
		return b, nil
	},
	func(b []byte) (int64, error) {
		if len(b) != 8 {
			return 0, decodeError(IDInt64, "want 8 bytes, got %d", len(b))
		}
		return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
	},
	nil,
)

// Int32 4 字节大端，翻转符号位
// EN: Int32 is big-endian with the sign bit flipped.
var Int32 Codec[int32] = New(IDInt32, 1,
	func(v int32) ([]byte, error) {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v)^(1<<31))
		return b, nil
	},
	func(b []byte) (int32, error) {
		if len(b) != 4 {
			return 0, decodeError(IDInt32, "want 4 bytes, got %d", len(b))
		}
		return int32(binary.BigEndian.Uint32(b) ^ (1 << 31)), nil
	},
	nil,
)

// Float64 IEEE 754 可比较编码：正数翻转符号位，负数翻转所有位
// EN: Float64 uses the comparable IEEE 754 form: positives flip the sign bit,
// negatives flip every bit. All NaNs encode as one canonical NaN sorting last.
var Float64 Codec[float64] = New(IDFloat64, 1,
	func(v float64) ([]byte, error) {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, sortableFloatBits(v))
		return b, nil
	},
	func(b []byte) (float64, error) {
		if len(b) != 8 {
			return 0, decodeError(IDFloat64, "want 8 bytes, got %d", len(b))
		}
		return unsortableFloatBits(binary.BigEndian.Uint64(b)), nil
	},
	nil,
)

func sortableFloatBits(f float64) uint64 {
	if math.IsNaN(f) {
		f = math.NaN()
	}
	if f == 0 {
		// -0 与 +0 视为同一个键
		f = 0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits ^ (1 << 63)
}

func unsortableFloatBits(bits uint64) float64 {
	if bits&(1<<63) != 0 {
		return math.Float64frombits(bits ^ (1 << 63))
	}
	return math.Float64frombits(^bits)
}

// String UTF-8 原始字节；字节序即码点序
// EN: String stores raw UTF-8; byte order equals code point order.
var String Codec[string] = New(IDString, 1,
	func(v string) ([]byte, error) {
		if !utf8.ValidString(v) {
			return nil, encodeError(IDString, "invalid UTF-8")
		}
		return []byte(v), nil
	},
	func(b []byte) (string, error) {
		if !utf8.Valid(b) {
			return "", decodeError(IDString, "invalid UTF-8")
		}
		return string(b), nil
	},
	nil,
)

// Bytes 原样保存
// EN: Bytes stores the slice as is.
var Bytes Codec[[]byte] = New(IDBytes, 1,
	func(v []byte) ([]byte, error) {
		return bytes.Clone(v), nil
	},
	func(b []byte) ([]byte, error) {
		return bytes.Clone(b), nil
	},
	nil,
)

// Bool false < true
var Bool Codec[bool] = New(IDBool, 1,
	func(v bool) ([]byte, error) {
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	},
	func(b []byte) (bool, error) {
		if len(b) != 1 || b[0] > 1 {
			return false, decodeError(IDBool, "invalid encoding %x", b)
		}
		return b[0] == 1, nil
	},
	nil,
)
