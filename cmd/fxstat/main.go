// Created by Yanjunhui
//
// fxstat: 存储文件空间统计与结构校验

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Snoworca/FxStore-sub001/engine"
)

var (
	dbPath    = flag.String("db", "", "存储文件路径（必需）")
	skipDeep  = flag.Bool("fast", false, "只计算 FAST 统计")
	noVerify  = flag.Bool("no-verify", false, "跳过结构校验")
	listColls = flag.Bool("collections", true, "列出集合")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(22)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "FxStore Stat Tool\n\n")
		fmt.Fprintf(os.Stderr, "用法:\n")
		fmt.Fprintf(os.Stderr, "  fxstat -db <存储文件> [-fast] [-no-verify]\n\n")
		fmt.Fprintf(os.Stderr, "选项:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须指定存储文件路径 (-db)")
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*dbPath))
}

func run(path string) int {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	opts := engine.DefaultOptions()
	opts.FileLock = engine.LockNone
	opts.Logger = engine.NewLogger(os.Stderr)
	opts.Logger.SetLevel(engine.LogLevelError)

	s, err := engine.Open(path, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开存储失败: %v\n", err)
		return 1
	}
	defer s.Close()

	var blocks []string

	fast, err := s.Stats(engine.StatsFast)
	if err != nil {
		fmt.Fprintf(os.Stderr, "统计失败: %v\n", err)
		return 1
	}
	blocks = append(blocks, statsBlock(engine.StatsFast, fast))

	if !*skipDeep {
		deep, err := s.Stats(engine.StatsDeep)
		if err != nil {
			fmt.Fprintf(os.Stderr, "统计失败: %v\n", err)
			return 1
		}
		blocks = append(blocks, statsBlock(engine.StatsDeep, deep))
	}

	header := titleStyle.Render("FxStore") + "  " + valueStyle.Render(path) +
		"  " + labelStyle.Copy().Width(0).Render(fmt.Sprintf("page size %d", s.PageSize()))
	out := []string{header, lipgloss.JoinHorizontal(lipgloss.Top, blocks...)}

	if *listColls {
		infos, err := s.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "列出集合失败: %v\n", err)
			return 1
		}
		out = append(out, collectionsBlock(infos))
	}

	code := 0
	if !*noVerify {
		res, err := s.Verify()
		if err != nil {
			fmt.Fprintf(os.Stderr, "校验失败: %v\n", err)
			return 1
		}
		out = append(out, verifyBlock(res))
		if !res.OK() {
			code = 2
		}
	}

	fmt.Println(lipgloss.JoinVertical(lipgloss.Left, out...))
	return code
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func statsBlock(mode engine.StatsMode, st engine.Stats) string {
	lines := []string{
		titleStyle.Render(mode.String()),
		row("file bytes", humanBytes(st.FileBytes)),
		row("live bytes (est.)", humanBytes(st.LiveBytesEstimate)),
		row("dead bytes (est.)", humanBytes(st.DeadBytesEstimate)),
		row("dead ratio", fmt.Sprintf("%.1f%%", st.DeadRatio*100)),
		row("collections", fmt.Sprintf("%d", st.CollectionCount)),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func collectionsBlock(infos []engine.CollectionInfo) string {
	if len(infos) == 0 {
		return boxStyle.Render(labelStyle.Copy().Width(0).Render("no collections"))
	}
	cell := lipgloss.NewStyle().Width(18)
	lines := []string{titleStyle.Render(
		cell.Render("NAME") + cell.Render("KIND") + cell.Render("SIZE") + cell.Render("KEY") + "VALUE")}
	for _, info := range infos {
		lines = append(lines, valueStyle.Render(
			cell.Render(info.Name)+
				cell.Render(string(info.Kind))+
				cell.Render(fmt.Sprintf("%d", info.Size))+
				cell.Render(info.KeyCodec.String())+
				info.ValueCodec.String()))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func verifyBlock(res engine.VerifyResult) string {
	if res.OK() {
		return boxStyle.Render(okStyle.Render("verify: OK"))
	}
	lines := []string{errStyle.Render(fmt.Sprintf("verify: %d problem(s)", len(res.Errors)))}
	for _, e := range res.Errors {
		lines = append(lines, valueStyle.Render(e.String()))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
