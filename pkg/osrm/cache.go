package osrm

import (
	lru "github.com/hashicorp/golang-lru/v2"
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

// RouteCache keeps recently routed geometries keyed by the request path. It is
// safe for concurrent use and a nil *RouteCache is a disabled cache.
type RouteCache struct {
	cache *lru.Cache[string, da.RouteGeometry]
}

// NewRouteCache returns nil when size is not positive.
func NewRouteCache(size int) (*RouteCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, da.RouteGeometry](size)
	if err != nil {
		return nil, err
	}
	return &RouteCache{cache: c}, nil
}

func (rc *RouteCache) Get(key string) (da.RouteGeometry, bool) {
	if rc == nil {
		return nil, false
	}
	return rc.cache.Get(key)
}

func (rc *RouteCache) Add(key string, geometry da.RouteGeometry) {
	if rc == nil {
		return
	}
	rc.cache.Add(key, geometry)
}

func (rc *RouteCache) Len() int {
	if rc == nil {
		return 0
	}
	return rc.cache.Len()
}
