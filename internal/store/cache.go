package store

import (
	"fmt"
	"strings"
	"time"
)

type cacheItem struct {
	Response PhoneList
	Expires  time.Time
}

const phoneCachePrefix = "phones|"

func phoneCacheKey(f PhoneFilter, cursor string, limit int) string {
	return fmt.Sprintf("%s%s|%s|%s|%s|%d", phoneCachePrefix, f.Status, strings.ToLower(f.Brand),
		strings.ToLower(strings.TrimSpace(f.Query)), cursor, limit)
}

func (s *Store) getListCache(key string) (PhoneList, bool) {
	s.cacheMu.RLock()
	item, ok := s.listCache[key]
	s.cacheMu.RUnlock()
	if !ok || time.Now().After(item.Expires) {
		return PhoneList{}, false
	}
	return item.Response, true
}

func (s *Store) setListCache(key string, value PhoneList) {
	if s.cacheTTL <= 0 {
		return
	}
	s.cacheMu.Lock()
	s.listCache[key] = cacheItem{Response: value, Expires: time.Now().Add(s.cacheTTL)}
	s.cacheMu.Unlock()
}

// invalidatePhoneCache drops every cached phone page. Model changes count too:
// list entries carry their cheapest model price.
func (s *Store) invalidatePhoneCache() {
	s.cacheMu.Lock()
	for k := range s.listCache {
		if strings.HasPrefix(k, phoneCachePrefix) {
			delete(s.listCache, k)
		}
	}
	s.cacheMu.Unlock()
}
