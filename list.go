package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/frontcache/frontcache/internal/pagecache"
	"github.com/frontcache/frontcache/internal/server"
)

func listAction(_ context.Context, cmd *cli.Command) error {
	cfg, _, _, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	pc, err := server.NewPageCache(cfg, nil)
	if err != nil {
		return cli.Exit(fmt.Sprintf("初始化页面缓存失败: %v", err), 1)
	}

	entries, err := pc.Entries()
	if err != nil {
		return cli.Exit(fmt.Sprintf("读取缓存目录失败: %v", err), 1)
	}
	return writeEntries(stdOut, pc.Root(), entries)
}

// writeEntries 以表格输出条目，大小与时间使用易读格式。
func writeEntries(w io.Writer, root string, entries []pagecache.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tKIND\tSIZE\tMODIFIED")

	var total uint64
	for _, entry := range entries {
		size := uint64(max(entry.SizeBytes, 0))
		total += size
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			entry.Target,
			entry.Kind,
			humanize.Bytes(size),
			humanize.Time(entry.ModTime),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d entries, %s in %s\n", len(entries), humanize.Bytes(total), root)
	return err
}
