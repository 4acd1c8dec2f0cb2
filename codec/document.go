// Created by Yanjunhui

package codec

import (
	"github.com/fxamacker/cbor/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// 文档型值编解码器 ID
// EN: Document value codec ids.
const (
	IDBSON = "fx:bson"
	IDCBOR = "fx:cbor"
)

// bsonEnvelope BSON 顶层必须是文档，标量值包一层 {v: ...}
// EN: bsonEnvelope wraps the value as {v: ...}; BSON's top level must be a document.
type bsonEnvelope[T any] struct {
	V T `bson:"v"`
}

// BSON 以 BSON 文档保存任意值
// 编码字节不保序，只适合作为值编解码器
// EN: BSON stores any bson-marshalable value. Encodings are not order preserving,
// so it is meant for values, not keys.
func BSON[T any]() Codec[T] {
	return New[T](IDBSON, 1,
		func(v T) ([]byte, error) {
			data, err := bson.Marshal(bsonEnvelope[T]{V: v})
			if err != nil {
				return nil, encodeError(IDBSON, "%v", err)
			}
			return data, nil
		},
		func(data []byte) (T, error) {
			var env bsonEnvelope[T]
			if err := bson.Unmarshal(data, &env); err != nil {
				return env.V, decodeError(IDBSON, "%v", err)
			}
			return env.V, nil
		},
		nil,
	)
}

// cborEncMode 核心确定性编码：相同的值总是得到相同的字节
// EN: cborEncMode uses Core Deterministic Encoding so equal values encode identically.
var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// CBOR 以确定性 CBOR 保存任意值
// EN: CBOR stores any cbor-marshalable value using deterministic encoding.
func CBOR[T any]() Codec[T] {
	return New[T](IDCBOR, 1,
		func(v T) ([]byte, error) {
			data, err := cborEncMode.Marshal(v)
			if err != nil {
				return nil, encodeError(IDCBOR, "%v", err)
			}
			return data, nil
		},
		func(data []byte) (T, error) {
			var v T
			if err := cbor.Unmarshal(data, &v); err != nil {
				return v, decodeError(IDCBOR, "%v", err)
			}
			return v, nil
		},
		nil,
	)
}
