// Created by Yanjunhui
//
// fxcompact: 将存储文件压缩到新文件

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Snoworca/FxStore-sub001/engine"
)

func main() {
	var (
		src    = flag.String("db", "", "源存储文件路径（必需）")
		dst    = flag.String("out", "", "目标文件路径，必须不存在（必需）")
		verify = flag.Bool("verify", true, "压缩后校验目标文件")
	)
	flag.Parse()

	if *src == "" || *dst == "" {
		fmt.Fprintln(os.Stderr, "用法: fxcompact -db <源文件> -out <目标文件>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log.SetFlags(log.LstdFlags)

	opts := engine.DefaultOptions()
	opts.Logger = engine.NewLogger(os.Stderr)

	s, err := engine.Open(*src, opts)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	if err := s.CompactTo(*dst); err != nil {
		s.Close()
		log.Fatalf("Compaction failed: %v", err)
	}
	if err := s.Close(); err != nil {
		log.Printf("Error closing source: %v", err)
	}

	if !*verify {
		return
	}
	c, err := engine.Open(*dst, opts)
	if err != nil {
		log.Fatalf("Failed to open compacted store: %v", err)
	}
	defer c.Close()
	res, err := c.Verify()
	if err != nil {
		log.Fatalf("Verify failed: %v", err)
	}
	if !res.OK() {
		for _, e := range res.Errors {
			log.Printf("verify: %s", e.String())
		}
		c.Close()
		os.Exit(2)
	}
	log.Printf("Compacted %s -> %s, verify OK", *src, *dst)
}
