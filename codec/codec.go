// Created by Yanjunhui

// Package codec 定义集合键值的编解码器
// EN: Package codec defines the key and value codecs used by collections.
//
// 键编解码器的编码结果按 bytes.Compare 保持原值顺序，B+Tree 直接比较编码后的字节。
// EN: Key codecs are order preserving: bytes.Compare on encodings agrees with the
// natural order of the decoded values, so trees compare encoded bytes directly.
package codec

import (
	"bytes"
	"fmt"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// Compare 编码字节比较函数
// EN: Compare orders two encodings.
type Compare func(a, b []byte) int

// Codec 类型 T 的编解码器
// EN: Codec converts T to and from bytes and orders the encodings.
type Codec[T any] interface {
	ID() string
	Version() int
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
	Compare(a, b []byte) int
}

// Ref 持久化到目录中的编解码器标识
// EN: Ref identifies a codec in the persisted catalog.
type Ref struct {
	ID      string `bson:"id"`
	Version int    `bson:"version"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s@%d", r.ID, r.Version)
}

// RefOf 返回编解码器的标识
// EN: RefOf returns the persisted identity of c.
func RefOf[T any](c Codec[T]) Ref {
	return Ref{ID: c.ID(), Version: c.Version()}
}

type funcCodec[T any] struct {
	id      string
	version int
	encode  func(T) ([]byte, error)
	decode  func([]byte) (T, error)
	compare Compare
}

// New 由函数组装编解码器；compare 为空时按字节序比较
// EN: New assembles a codec from functions. A nil compare means bytes.Compare.
func New[T any](id string, version int, encode func(T) ([]byte, error), decode func([]byte) (T, error), compare Compare) Codec[T] {
	if compare == nil {
		compare = bytes.Compare
	}
	return &funcCodec[T]{id: id, version: version, encode: encode, decode: decode, compare: compare}
}

func (c *funcCodec[T]) ID() string {
	return c.id
}

func (c *funcCodec[T]) Version() int {
	return c.version
}

func (c *funcCodec[T]) Encode(v T) ([]byte, error) {
	return c.encode(v)
}

func (c *funcCodec[T]) Decode(b []byte) (T, error) {
	return c.decode(b)
}

func (c *funcCodec[T]) Compare(a, b []byte) int {
	return c.compare(a, b)
}

func decodeError(id string, format string, args ...interface{}) error {
	return fxerr.Corruption(fmt.Sprintf("codec %s: ", id) + fmt.Sprintf(format, args...))
}

func encodeError(id string, format string, args ...interface{}) error {
	return fxerr.IllegalArgument(fmt.Sprintf("codec %s: ", id) + fmt.Sprintf(format, args...))
}
