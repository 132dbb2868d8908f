package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/frontcache/frontcache/internal/logging"
	"github.com/frontcache/frontcache/internal/pagecache"
	"github.com/frontcache/frontcache/internal/server"
)

func flushCommand() *cli.Command {
	return &cli.Command{
		Name:  "flush",
		Usage: "delete cached pages or fragments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "route URL whose full-page cache should be deleted, e.g. /blog",
			},
			&cli.BoolFlag{
				Name:  "recursive",
				Usage: "with --path, also delete every page whose name starts with the route",
			},
			&cli.StringSliceFlag{
				Name:  "part",
				Usage: "fragment id to delete (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "delete every full page and fragment",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "delete every full page",
			},
			&cli.BoolFlag{
				Name:  "parts",
				Usage: "delete every fragment",
			},
		},
		Action: flushAction,
	}
}

type flushRequest struct {
	scope  string
	target string
	run    func(*pagecache.PageCache) (int, error)
}

// parseFlushRequest 要求恰好选择一种清理方式。
func parseFlushRequest(cmd *cli.Command) (flushRequest, error) {
	var selected []flushRequest

	if path := cmd.String("path"); path != "" {
		recursive := cmd.Bool("recursive")
		selected = append(selected, flushRequest{
			scope:  pagecache.ScopePath,
			target: path,
			run: func(pc *pagecache.PageCache) (int, error) {
				return pc.FlushPath(path, recursive)
			},
		})
	} else if cmd.Bool("recursive") {
		return flushRequest{}, fmt.Errorf("--recursive requires --path")
	}

	if ids := cmd.StringSlice("part"); len(ids) > 0 {
		selected = append(selected, flushRequest{
			scope:  pagecache.ScopePart,
			target: strings.Join(ids, ","),
			run: func(pc *pagecache.PageCache) (int, error) {
				return pc.FlushPartial(ids...)
			},
		})
	}
	if cmd.Bool("all") {
		selected = append(selected, flushRequest{scope: "all", run: (*pagecache.PageCache).FlushAll})
	}
	if cmd.Bool("full") {
		selected = append(selected, flushRequest{scope: pagecache.ScopeFull, run: (*pagecache.PageCache).FlushAllFull})
	}
	if cmd.Bool("parts") {
		selected = append(selected, flushRequest{scope: pagecache.ScopeParts, run: (*pagecache.PageCache).FlushAllPartial})
	}

	switch len(selected) {
	case 0:
		return flushRequest{}, fmt.Errorf("one of --path, --part, --all, --full or --parts is required")
	case 1:
		return selected[0], nil
	default:
		return flushRequest{}, fmt.Errorf("only one flush mode may be given")
	}
}

func flushAction(_ context.Context, cmd *cli.Command) error {
	req, err := parseFlushRequest(cmd)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	cfg, logger, _, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	pc, err := server.NewPageCache(cfg, nil)
	if err != nil {
		return cli.Exit(fmt.Sprintf("初始化页面缓存失败: %v", err), 1)
	}

	started := time.Now()
	deleted, err := req.run(pc)
	fields := logging.FlushFields(req.scope, req.target, deleted, time.Since(started))
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("flush_failed")
		return cli.Exit(fmt.Sprintf("清理缓存失败: %v", err), 1)
	}
	logger.WithFields(fields).Info("flush_complete")

	fmt.Fprintf(stdOut, "deleted %d file(s) from %s\n", deleted, pc.Root())
	return nil
}
