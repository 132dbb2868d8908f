package pagecache

import (
	"path/filepath"
	"sort"
	"time"
)

// Entry 描述磁盘上的一个缓存文件，供诊断接口与 CLI 列表使用。
type Entry struct {
	Target    Target    `json:"target"`
	Kind      string    `json:"kind"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// Age 返回条目相对 now 的年龄。
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ModTime)
}

// Entries 列出整页与局部缓存，按 Target 排序。写入中的临时文件会被忽略。
func (p *PageCache) Entries() ([]Entry, error) {
	var entries []Entry
	for _, scan := range []struct {
		dir  string
		kind string
	}{
		{"", KindPage},
		{PartsDir, KindPart},
	} {
		names, err := p.listFiles(scan.dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			t := Target(filepath.ToSlash(filepath.Join(scan.dir, name)))
			info, ok, err := p.stat(t)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			entries = append(entries, Entry{
				Target:    t,
				Kind:      scan.kind,
				SizeBytes: info.Size(),
				ModTime:   info.ModTime(),
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Target < entries[j].Target
	})
	return entries, nil
}
