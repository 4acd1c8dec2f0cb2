// Created by Yanjunhui

package engine

import (
	"fmt"

	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/Snoworca/FxStore-sub001/storage"
	"go.mongodb.org/mongo-driver/bson"
)

// catalogData 目录持久化数据结构
// EN: catalogData is the persisted catalog document.
type catalogData struct {
	Collections []collectionData `bson:"collections"`
}

// collectionData 集合持久化数据
// EN: collectionData is one persisted collection entry.
type collectionData struct {
	ID         uint64    `bson:"id"`
	Name       string    `bson:"name"`
	Kind       string    `bson:"kind"`
	KeyCodec   codec.Ref `bson:"keyCodec"`
	ValueCodec codec.Ref `bson:"valueCodec"`
	Root       uint64    `bson:"root"`
	Count      int64     `bson:"count"`
	HeadSeq    int64     `bson:"headSeq"`
	TailSeq    int64     `bson:"tailSeq"`
	CreatedAt  int64     `bson:"createdAt"`
}

// encodeCatalog 将快照中的集合编码为 BSON
// EN: encodeCatalog marshals the snapshot's collections, ordered by id.
func encodeCatalog(snap *snapshot) ([]byte, error) {
	cat := catalogData{Collections: make([]collectionData, 0, len(snap.byID))}
	for _, c := range snap.sorted() {
		cat.Collections = append(cat.Collections, collectionData{
			ID:         c.ID,
			Name:       c.Name,
			Kind:       string(c.Kind),
			KeyCodec:   c.KeyCodec,
			ValueCodec: c.ValueCodec,
			Root:       c.Root,
			Count:      c.Count,
			HeadSeq:    c.HeadSeq,
			TailSeq:    c.TailSeq,
			CreatedAt:  c.CreatedAt,
		})
	}
	data, err := bson.Marshal(cat)
	if err != nil {
		return nil, fxerr.Wrap(fxerr.CodeInternal, err, "failed to encode catalog")
	}
	return data, nil
}

// decodeCatalog 解析目录并校验条目
// EN: decodeCatalog unmarshals the catalog and rejects inconsistent entries.
func decodeCatalog(data []byte, snap *snapshot) error {
	var cat catalogData
	if err := bson.Unmarshal(data, &cat); err != nil {
		return fxerr.Corruption(fmt.Sprintf("catalog: %v", err))
	}

	for _, cd := range cat.Collections {
		kind := CollectionKind(cd.Kind)
		switch {
		case !kind.valid():
			return fxerr.Corruption(fmt.Sprintf("catalog: collection %q has unknown kind %q", cd.Name, cd.Kind))
		case cd.ID == 0 || cd.ID >= snap.nextCollectionID:
			return fxerr.Corruption(fmt.Sprintf("catalog: collection %q has invalid id %d", cd.Name, cd.ID))
		case cd.Count < 0:
			return fxerr.Corruption(fmt.Sprintf("catalog: collection %q has negative count", cd.Name))
		case cd.Root != storage.NoPage && cd.Root >= snap.allocTail:
			return fxerr.Corruption(fmt.Sprintf("catalog: collection %q root %d beyond alloc tail %d", cd.Name, cd.Root, snap.allocTail))
		}
		if _, dup := snap.byID[cd.ID]; dup {
			return fxerr.Corruption(fmt.Sprintf("catalog: duplicate collection id %d", cd.ID))
		}
		if _, dup := snap.byName[cd.Name]; dup {
			return fxerr.Corruption(fmt.Sprintf("catalog: duplicate collection name %q", cd.Name))
		}

		snap.byID[cd.ID] = &collectionState{
			ID:         cd.ID,
			Name:       cd.Name,
			Kind:       kind,
			KeyCodec:   cd.KeyCodec,
			ValueCodec: cd.ValueCodec,
			Root:       cd.Root,
			Count:      cd.Count,
			HeadSeq:    cd.HeadSeq,
			TailSeq:    cd.TailSeq,
			CreatedAt:  cd.CreatedAt,
		}
		snap.byName[cd.Name] = cd.ID
	}
	return nil
}

// loadSnapshot 根据提交头重建快照
// EN: loadSnapshot rebuilds the committed snapshot described by h.
func loadSnapshot(pager *storage.Pager, h *storage.CommitHeader) (*snapshot, error) {
	snap := newSnapshot()
	snap.seqNo = h.SeqNo
	snap.allocTail = h.AllocTail
	snap.nextCollectionID = h.NextCollectionID
	snap.catalogRoot = h.CatalogRoot
	if snap.nextCollectionID == 0 {
		snap.nextCollectionID = 1
	}

	if h.CatalogRoot == storage.NoPage {
		return snap, nil
	}
	data, err := pager.ReadChain(storage.PageTypeCatalog, h.CatalogRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if err := decodeCatalog(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// writeCatalog 写入新的目录链，空目录不占页
// EN: writeCatalog writes a fresh catalog chain; an empty catalog takes no page.
func writeCatalog(pager *storage.Pager, snap *snapshot) (uint64, error) {
	if len(snap.byID) == 0 {
		return storage.NoPage, nil
	}
	data, err := encodeCatalog(snap)
	if err != nil {
		return storage.NoPage, err
	}
	return pager.WriteChain(storage.PageTypeCatalog, data)
}
