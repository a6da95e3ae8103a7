package cache

import (
	"errors"
	"time"
)

// LayeredCache implements a multi-layer cache, fastest layer first
// (memory, disk, then an optional shared redis layer)
type LayeredCache struct {
	layers []Cache
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(layers ...Cache) *LayeredCache {
	return &LayeredCache{layers: layers}
}

// Get retrieves a value from the first layer holding it and promotes it to
// the faster layers in front
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	for i, layer := range c.layers {
		val, found := layer.Get(key)
		if !found {
			continue
		}
		for _, front := range c.layers[:i] {
			_ = front.Set(key, val, 0) // Use default TTL
		}
		return val, true
	}
	return nil, false
}

// Set stores a value in every layer
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	for _, layer := range c.layers {
		if err := layer.Set(key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a value from every layer
func (c *LayeredCache) Delete(key string) error {
	var errs []error
	for _, layer := range c.layers {
		errs = append(errs, layer.Delete(key))
	}
	return errors.Join(errs...)
}

// Clear removes all values from every layer
func (c *LayeredCache) Clear() error {
	var errs []error
	for _, layer := range c.layers {
		errs = append(errs, layer.Clear())
	}
	return errors.Join(errs...)
}

// Close closes every layer holding a connection
func (c *LayeredCache) Close() error {
	var errs []error
	for _, layer := range c.layers {
		if closer, ok := layer.(interface{ Close() error }); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}
