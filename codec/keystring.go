// Created by Yanjunhui

package codec

import (
	"bytes"
	"encoding/binary"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDKeyString 动态类型键编解码器 ID
const IDKeyString = "fx:keystring"

// KeyString 类型标记（按 BSON 排序优先级）
const (
	ksMinKey    byte = 0x00
	ksNull      byte = 0x05
	ksNumber    byte = 0x10
	ksString    byte = 0x14
	ksObject    byte = 0x18
	ksArray     byte = 0x1C
	ksBinData   byte = 0x20
	ksObjectID  byte = 0x24
	ksBool      byte = 0x28
	ksDate      byte = 0x2C
	ksTimestamp byte = 0x30
	ksRegex     byte = 0x34
	ksMaxKey    byte = 0xFF

	// 容器内元素前缀与结束标记：结束标记更小，所以短容器排在前面
	ksElem byte = 0x01
	ksEnd  byte = 0x00
)

// 数字子类型：数值相同时按子类型区分，保证解码后类型不变
const (
	numInt32  byte = 1
	numInt64  byte = 2
	numDouble byte = 3
)

// KeyString 动态类型的保序键编解码器
// 支持 nil、MinKey/MaxKey、数字、字符串、文档、数组、二进制、ObjectID、布尔、日期、时间戳、正则。
// 不同类型按 BSON 比较顺序排列，所有数字类型按数值统一排序。
var KeyString Codec[any] = New[any](IDKeyString, 1, encodeKeyString, decodeKeyString, nil)

func encodeKeyString(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeValue 编码单个值
func encodeValue(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteByte(ksNull)
		return nil
	}

	switch val := v.(type) {
	case primitive.MinKey:
		buf.WriteByte(ksMinKey)
	case primitive.MaxKey:
		buf.WriteByte(ksMaxKey)
	case primitive.Null:
		buf.WriteByte(ksNull)

	case int:
		encodeInt64(buf, int64(val))
	case int32:
		buf.WriteByte(ksNumber)
		encodeNumber(buf, float64(val))
		buf.WriteByte(numInt32)
	case int64:
		encodeInt64(buf, val)
	case float64:
		buf.WriteByte(ksNumber)
		encodeNumber(buf, val)
		buf.WriteByte(numDouble)

	case string:
		buf.WriteByte(ksString)
		encodeString(buf, val)

	case bson.D:
		buf.WriteByte(ksObject)
		for _, e := range val {
			buf.WriteByte(ksElem)
			encodeString(buf, e.Key)
			if err := encodeValue(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte(ksEnd)

	case bson.A:
		return encodeArray(buf, val)
	case []any:
		return encodeArray(buf, val)

	case []byte:
		buf.WriteByte(ksBinData)
		encodeBinary(buf, 0, val)
	case primitive.Binary:
		buf.WriteByte(ksBinData)
		encodeBinary(buf, val.Subtype, val.Data)

	case primitive.ObjectID:
		buf.WriteByte(ksObjectID)
		buf.Write(val[:])

	case bool:
		buf.WriteByte(ksBool)
		if val {
			buf.WriteByte(0x02)
		} else {
			buf.WriteByte(0x01)
		}

	case time.Time:
		buf.WriteByte(ksDate)
		encodeSortableInt64(buf, val.UnixMilli())
	case primitive.DateTime:
		buf.WriteByte(ksDate)
		encodeSortableInt64(buf, int64(val))

	case primitive.Timestamp:
		buf.WriteByte(ksTimestamp)
		var b [8]byte
		binary.BigEndian.PutUint32(b[0:4], val.T)
		binary.BigEndian.PutUint32(b[4:8], val.I)
		buf.Write(b[:])

	case primitive.Regex:
		buf.WriteByte(ksRegex)
		encodeString(buf, val.Pattern)
		encodeString(buf, val.Options)

	default:
		return encodeError(IDKeyString, "unsupported key type %T", v)
	}
	return nil
}

// encodeInt64 超出 float64 精确范围的整数在近似值之后追加精确值
func encodeInt64(buf *bytes.Buffer, v int64) {
	buf.WriteByte(ksNumber)
	encodeNumber(buf, float64(v))
	buf.WriteByte(numInt64)
	encodeSortableInt64(buf, v)
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte(ksArray)
	for _, e := range arr {
		buf.WriteByte(ksElem)
		if err := encodeValue(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte(ksEnd)
	return nil
}

// encodeNumber IEEE 754 可比较编码
func encodeNumber(buf *bytes.Buffer, f float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], sortableFloatBits(f))
	buf.Write(b[:])
}

func encodeSortableInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^(1<<63))
	buf.Write(b[:])
}

// encodeString 转义内部的 0x00 与 0xFF，以 0x00 0x00 结尾
func encodeString(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch b := s[i]; b {
		case 0x00:
			buf.WriteByte(0x00)
			buf.WriteByte(0xFF)
		case 0xFF:
			buf.WriteByte(0xFF)
			buf.WriteByte(0x00)
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
}

// encodeBinary 先比较长度，再比较子类型和内容
func encodeBinary(buf *bytes.Buffer, subtype byte, data []byte) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(data)))
	buf.Write(b[:])
	buf.WriteByte(subtype)
	buf.Write(data)
}

// keyStringDecoder 顺序解析器
type keyStringDecoder struct {
	data []byte
	pos  int
}

func decodeKeyString(data []byte) (any, error) {
	d := &keyStringDecoder{data: data}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(data) {
		return nil, decodeError(IDKeyString, "%d trailing bytes", len(data)-d.pos)
	}
	return v, nil
}

func (d *keyStringDecoder) need(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, decodeError(IDKeyString, "truncated at offset %d", d.pos)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *keyStringDecoder) readByte() (byte, error) {
	b, err := d.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *keyStringDecoder) readUint64() (uint64, error) {
	b, err := d.need(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *keyStringDecoder) readString() (string, error) {
	var out []byte
	for {
		b, err := d.readByte()
		if err != nil {
			return "", err
		}
		if b != 0x00 && b != 0xFF {
			out = append(out, b)
			continue
		}
		next, err := d.readByte()
		if err != nil {
			return "", err
		}
		switch {
		case b == 0x00 && next == 0x00:
			return string(out), nil
		case b == 0x00 && next == 0xFF:
			out = append(out, 0x00)
		case b == 0xFF && next == 0x00:
			out = append(out, 0xFF)
		default:
			return "", decodeError(IDKeyString, "bad string escape %02x%02x", b, next)
		}
	}
}

// elements 解析容器元素直到结束标记
func (d *keyStringDecoder) elements(fn func() error) error {
	for {
		marker, err := d.readByte()
		if err != nil {
			return err
		}
		if marker == ksEnd {
			return nil
		}
		if marker != ksElem {
			return decodeError(IDKeyString, "bad element marker %02x", marker)
		}
		if err := fn(); err != nil {
			return err
		}
	}
}

func (d *keyStringDecoder) value() (any, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case ksMinKey:
		return primitive.MinKey{}, nil
	case ksMaxKey:
		return primitive.MaxKey{}, nil
	case ksNull:
		return nil, nil

	case ksNumber:
		bits, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		sub, err := d.readByte()
		if err != nil {
			return nil, err
		}
		f := unsortableFloatBits(bits)
		switch sub {
		case numInt32:
			return int32(f), nil
		case numDouble:
			return f, nil
		case numInt64:
			exact, err := d.readUint64()
			if err != nil {
				return nil, err
			}
			return int64(exact ^ (1 << 63)), nil
		default:
			return nil, decodeError(IDKeyString, "unknown number subtype %d", sub)
		}

	case ksString:
		return d.readString()

	case ksObject:
		doc := bson.D{}
		err := d.elements(func() error {
			key, err := d.readString()
			if err != nil {
				return err
			}
			v, err := d.value()
			if err != nil {
				return err
			}
			doc = append(doc, bson.E{Key: key, Value: v})
			return nil
		})
		return doc, err

	case ksArray:
		arr := bson.A{}
		err := d.elements(func() error {
			v, err := d.value()
			if err != nil {
				return err
			}
			arr = append(arr, v)
			return nil
		})
		return arr, err

	case ksBinData:
		lb, err := d.need(4)
		if err != nil {
			return nil, err
		}
		sub, err := d.readByte()
		if err != nil {
			return nil, err
		}
		data, err := d.need(int(binary.BigEndian.Uint32(lb)))
		if err != nil {
			return nil, err
		}
		if sub == 0 {
			return bytes.Clone(data), nil
		}
		return primitive.Binary{Subtype: sub, Data: bytes.Clone(data)}, nil

	case ksObjectID:
		b, err := d.need(12)
		if err != nil {
			return nil, err
		}
		var oid primitive.ObjectID
		copy(oid[:], b)
		return oid, nil

	case ksBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if b != 0x01 && b != 0x02 {
			return nil, decodeError(IDKeyString, "bad bool byte %02x", b)
		}
		return b == 0x02, nil

	case ksDate:
		u, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return primitive.DateTime(int64(u ^ (1 << 63))), nil

	case ksTimestamp:
		b, err := d.need(8)
		if err != nil {
			return nil, err
		}
		return primitive.Timestamp{T: binary.BigEndian.Uint32(b[0:4]), I: binary.BigEndian.Uint32(b[4:8])}, nil

	case ksRegex:
		pattern, err := d.readString()
		if err != nil {
			return nil, err
		}
		options, err := d.readString()
		if err != nil {
			return nil, err
		}
		return primitive.Regex{Pattern: pattern, Options: options}, nil
	}

	return nil, decodeError(IDKeyString, "unknown type tag %02x", tag)
}
