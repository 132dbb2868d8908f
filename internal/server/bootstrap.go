package server

import (
	"fmt"

	"github.com/frontcache/frontcache/internal/config"
	"github.com/frontcache/frontcache/internal/pagecache"
)

// NewPageCache builds the page cache described by cfg. recorder may be nil.
func NewPageCache(cfg *config.Config, recorder pagecache.Recorder) (*pagecache.PageCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	opts := cfg.CacheOptions()
	opts.Recorder = recorder
	pc, err := pagecache.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init page cache: %w", err)
	}
	return pc, nil
}
