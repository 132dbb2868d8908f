package pagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// 清理范围，用于指标标签。
const (
	ScopePath  = "path"
	ScopePart  = "part"
	ScopeFull  = "full"
	ScopeParts = "parts"
)

// FlushPath 按路由 URL 删除整页缓存，返回实际删除的文件数。
//
// "/" 删除首页的两个候选文件（带与不带前端控制器）。其他 URL 去掉一个前导 "/"
// 后同样生成两个候选。recursive 为 true 时再扫描根目录，删除所有以候选前缀
// 开头的文件，例如 FlushPath("/blog", true) 会同时删除 blog-article-x.html。
func (p *PageCache) FlushPath(url string, recursive bool) (int, error) {
	plan := PlanFlush(p.subfolder, p.front, url)

	deleted := 0
	for _, t := range plan.Files {
		ok, err := p.remove(t)
		if err != nil {
			p.recorder.Flushed(ScopePath, deleted)
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	if recursive && len(plan.Prefixes) > 0 {
		names, err := p.listFiles("")
		if err != nil {
			p.recorder.Flushed(ScopePath, deleted)
			return deleted, err
		}
		for _, name := range MatchPrefix(names, plan.Prefixes...) {
			ok, err := p.remove(Target(name))
			if err != nil {
				p.recorder.Flushed(ScopePath, deleted)
				return deleted, err
			}
			if ok {
				deleted++
			}
		}
	}

	p.recorder.Flushed(ScopePath, deleted)
	return deleted, nil
}

// FlushPartial 删除一个或多个局部缓存，返回删除数量。非法 id 会被跳过。
func (p *PageCache) FlushPartial(ids ...string) (int, error) {
	deleted := 0
	for _, id := range ids {
		t := PartialTarget(id)
		if t.IsZero() {
			continue
		}
		ok, err := p.remove(t)
		if err != nil {
			p.recorder.Flushed(ScopePart, deleted)
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	p.recorder.Flushed(ScopePart, deleted)
	return deleted, nil
}

// FlushAllFull 删除根目录下的所有文件，不进入 parts/。
func (p *PageCache) FlushAllFull() (int, error) {
	return p.flushDir("", ScopeFull)
}

// FlushAllPartial 删除 parts/ 下的所有文件。
func (p *PageCache) FlushAllPartial() (int, error) {
	return p.flushDir(PartsDir, ScopeParts)
}

// FlushAll 依次清理整页与局部缓存，返回总删除数。
func (p *PageCache) FlushAll() (int, error) {
	full, err := p.FlushAllFull()
	if err != nil {
		return full, err
	}
	parts, err := p.FlushAllPartial()
	return full + parts, err
}

func (p *PageCache) flushDir(dir, scope string) (int, error) {
	names, err := p.listFiles(dir)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range names {
		ok, err := p.remove(Target(filepath.ToSlash(filepath.Join(dir, name))))
		if err != nil {
			p.recorder.Flushed(scope, deleted)
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	p.recorder.Flushed(scope, deleted)
	return deleted, nil
}

// remove 删除单个文件。文件不存在或是目录时返回 false，不视为错误。
func (p *PageCache) remove(t Target) (bool, error) {
	_, ok, err := p.stat(t)
	if err != nil || !ok {
		return false, err
	}
	if err := p.fs.Remove(p.Path(t)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove cache %s: %w", t, err)
	}
	return true, nil
}

// listFiles 返回 root 下 dir 目录中的普通文件名（不递归）。目录不存在视为空目录。
// 正在写入的临时文件不计入结果，避免清理时删掉它导致 Rename 失败。
func (p *PageCache) listFiles(dir string) ([]string, error) {
	full := filepath.Join(p.Root(), filepath.FromSlash(dir))
	infos, err := afero.ReadDir(p.fs, full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache dir %s: %w", full, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() && !isTempName(info.Name()) {
			names = append(names, info.Name())
		}
	}
	return names, nil
}
