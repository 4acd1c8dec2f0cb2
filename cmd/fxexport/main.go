// Created by Yanjunhui
//
// fxexport: 将集合导出为 MongoDB Extended JSON Lines（每行一个条目）

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/engine"
)

var (
	dbPath     = flag.String("db", "", "存储文件路径（必需）")
	collection = flag.String("collection", "", "要导出的集合名称（默认全部）")
	outputFile = flag.String("out", "", "输出文件路径（默认标准输出）")
	canonical  = flag.Bool("canonical", false, "使用 canonical Extended JSON")
	verbose    = flag.Bool("v", false, "显示详细输出")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "FxStore Export Tool\n\n")
		fmt.Fprintf(os.Stderr, "用法:\n")
		fmt.Fprintf(os.Stderr, "  fxexport -db <存储文件> [-collection <集合名>] [-out <输出文件>]\n\n")
		fmt.Fprintf(os.Stderr, "每行一个 JSON 对象: {collection, index, key, value}\n\n")
		fmt.Fprintf(os.Stderr, "选项:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须指定存储文件路径 (-db)")
		flag.Usage()
		os.Exit(1)
	}

	opts := engine.DefaultOptions()
	opts.FileLock = engine.LockNone
	opts.Logger = engine.NewLogger(os.Stderr)
	opts.Logger.SetLevel(engine.LogLevelWarn)

	s, err := engine.Open(*dbPath, opts)
	if err != nil {
		log.Fatalf("打开存储失败: %v", err)
	}
	defer s.Close()

	var out io.Writer = os.Stdout
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			log.Fatalf("创建输出文件失败: %v", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)

	if err := export(s, w, *collection); err != nil {
		w.Flush()
		log.Fatalf("导出失败: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("写入失败: %v", err)
	}
}

// export 在同一个读事务中导出，保证各集合来自同一快照
// EN: export runs in one read transaction so all collections come from one snapshot.
func export(s *engine.Store, w io.Writer, only string) error {
	tx, err := s.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Close()

	infos, err := tx.Collections()
	if err != nil {
		return err
	}
	found := false
	for _, info := range infos {
		if only != "" && info.Name != only {
			continue
		}
		found = true
		n, err := exportCollection(tx, s.Registry(), info, w)
		if err != nil {
			return fmt.Errorf("集合 %s: %w", info.Name, err)
		}
		if *verbose {
			log.Printf("已导出 %s: %d 条", info.Name, n)
		}
	}
	if only != "" && !found {
		return fmt.Errorf("集合 %q 不存在", only)
	}
	return nil
}

func exportCollection(tx *engine.ReadTxn, reg *codec.Registry, info engine.CollectionInfo, w io.Writer) (int64, error) {
	var (
		n      int64
		outErr error
	)
	err := tx.ScanRaw(info.Name, func(e engine.RawEntry) bool {
		doc := bson.D{
			{Key: "collection", Value: info.Name},
			{Key: "index", Value: e.Index},
		}
		if e.Key != nil {
			doc = append(doc, bson.E{Key: "key", Value: decodeValue(reg, info.KeyCodec, e.Key)})
		}
		if info.ValueCodec != (codec.Ref{}) {
			doc = append(doc, bson.E{Key: "value", Value: decodeValue(reg, info.ValueCodec, e.Value)})
		}

		line, err := bson.MarshalExtJSON(doc, *canonical, false)
		if err != nil {
			outErr = err
			return false
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			outErr = err
			return false
		}
		n++
		return true
	})
	if err != nil {
		return n, err
	}
	return n, outErr
}

// decodeValue 未注册或无法解码的编解码器导出为原始二进制
// EN: decodeValue falls back to raw binary for unknown or undecodable codecs.
func decodeValue(reg *codec.Registry, ref codec.Ref, raw []byte) interface{} {
	if entry, ok := reg.Lookup(ref.ID); ok && entry.DecodeAny != nil {
		if v, err := entry.DecodeAny(raw); err == nil {
			return v
		}
	}
	return primitive.Binary{Data: append([]byte(nil), raw...)}
}
