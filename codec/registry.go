// Created by Yanjunhui

package codec

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/fxamacker/cbor/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// Entry 按 ID 注册的编解码器信息，供不知道具体类型的工具使用（校验、导出）
// EN: Entry describes a codec by id for tools that do not know its Go type
// (verify, export).
type Entry struct {
	ID      string
	Compare Compare
	// Ordered 为真时 Compare 反映值的自然顺序，可用于校验键序
	// EN: Ordered reports whether Compare reflects the natural value order.
	Ordered bool
	// DecodeAny 解码为通用值，可为空
	// EN: DecodeAny decodes to a generic value; may be nil.
	DecodeAny func([]byte) (any, error)
}

// Registry 编解码器注册表
// EN: Registry maps codec ids to entries. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry 创建包含全部内置编解码器的注册表
// EN: NewRegistry returns a registry preloaded with the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]Entry)}
	registerOrdered(r, Int64)
	registerOrdered(r, Int32)
	registerOrdered(r, Float64)
	registerOrdered(r, String)
	registerOrdered(r, Bytes)
	registerOrdered(r, Bool)
	registerOrdered(r, KeyString)
	r.Register(Entry{ID: IDBSON, Compare: bytes.Compare, DecodeAny: decodeBSONAny})
	r.Register(Entry{ID: IDCBOR, Compare: bytes.Compare, DecodeAny: decodeCBORAny})
	return r
}

func registerOrdered[T any](r *Registry, c Codec[T]) {
	r.Register(Entry{
		ID:      c.ID(),
		Compare: c.Compare,
		Ordered: true,
		DecodeAny: func(b []byte) (any, error) {
			return c.Decode(b)
		},
	})
}

// Register 注册或替换条目
// EN: Register adds or replaces an entry.
func (r *Registry) Register(e Entry) {
	if e.Compare == nil {
		e.Compare = bytes.Compare
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

// Lookup 按 ID 查找
// EN: Lookup finds the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// MustLookup 未注册时返回 CodecNotFound 错误
// EN: MustLookup fails with CodecNotFound for unknown ids.
func (r *Registry) MustLookup(id string) (Entry, error) {
	if e, ok := r.Lookup(id); ok {
		return e, nil
	}
	return Entry{}, fxerr.New(fxerr.CodeCodecNotFound, fmt.Sprintf("codec %q is not registered", id))
}

// Default 全局默认注册表
// EN: Default is the process-wide registry.
var Default = NewRegistry()

// Register 将自定义编解码器注册到默认注册表；ordered 表示其比较器反映值顺序
// EN: Register adds a custom codec to Default. ordered marks Compare as
// reflecting the value order.
func Register[T any](c Codec[T], ordered bool) {
	Default.Register(Entry{
		ID:      c.ID(),
		Compare: c.Compare,
		Ordered: ordered,
		DecodeAny: func(b []byte) (any, error) {
			return c.Decode(b)
		},
	})
}

func decodeBSONAny(data []byte) (any, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, decodeError(IDBSON, "%v", err)
	}
	for _, e := range doc {
		if e.Key == "v" {
			return e.Value, nil
		}
	}
	return nil, decodeError(IDBSON, "missing envelope field v")
}

var cborAnyDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func decodeCBORAny(data []byte) (any, error) {
	var v any
	if err := cborAnyDecMode.Unmarshal(data, &v); err != nil {
		return nil, decodeError(IDCBOR, "%v", err)
	}
	return v, nil
}
