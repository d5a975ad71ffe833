package main

import (
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"shardscan/pkg/ocr"
)

// ScanCache remembers pipeline output per source message so a re-submitted
// screenshot (retries, double-posts) does not burn another OCR pass. Entries
// are invalidated explicitly when a scan is confirmed or rejected.
type ScanCache struct {
	cache *freecache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewScanCache(sizeMB int, ttl time.Duration, log zerolog.Logger) *ScanCache {
	if sizeMB <= 0 {
		sizeMB = 16
	}
	return &ScanCache{
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   ttl,
		log:   log,
	}
}

func scanCacheKey(groupID, threadID, messageRef string) []byte {
	return []byte("scan:" + groupID + ":" + threadID + ":" + messageRef)
}

func (c *ScanCache) Get(groupID, threadID, messageRef string) (*ocr.ScanResult, bool) {
	key := scanCacheKey(groupID, threadID, messageRef)
	raw, err := c.cache.Get(key)
	if err != nil {
		scanCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	var result ocr.ScanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.log.Warn().Err(err).Msg("scan cache entry undecodable, dropping")
		_ = c.cache.Del(key)
		scanCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	scanCacheHits.WithLabelValues("hit").Inc()
	return &result, true
}

func (c *ScanCache) Put(groupID, threadID, messageRef string, result *ocr.ScanResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Msg("scan result not cacheable")
		return
	}
	if err := c.cache.Set(scanCacheKey(groupID, threadID, messageRef), raw, int(c.ttl.Seconds())); err != nil {
		c.log.Warn().Err(err).Msg("scan cache set failed")
	}
}

func (c *ScanCache) Invalidate(groupID, threadID, messageRef string) {
	_ = c.cache.Del(scanCacheKey(groupID, threadID, messageRef))
}
