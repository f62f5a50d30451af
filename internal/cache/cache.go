// Package cache memoizes reference-image descriptor sets so repeated
// verification calls against the same gallery do not recompute them.
// It is a pure performance layer: a cold cache changes latency, not outcomes.
package cache

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/kozaktomas/attendance-kiosk/internal/features"
)

// Decoder turns stored image bytes into the raster the extractor consumes.
type Decoder interface {
	Decode(payload []byte) (*image.Gray, error)
}

// Extractor produces descriptors from a raster.
type Extractor interface {
	Extract(img *image.Gray) (features.DescriptorSet, error)
	Params() string
}

// entry is an immutable snapshot for one reference image version. Readers
// holding an entry are never affected by later invalidation.
type entry struct {
	modTime     int64
	size        int64
	descriptors features.DescriptorSet
}

// Cache memoizes extractor output per reference image path. Entries are keyed
// by (path, modification marker, extractor params); replacing the underlying
// photo invalidates the entry on the next lookup.
type Cache struct {
	decoder   Decoder
	extractor Extractor
	params    string

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty descriptor cache.
func New(decoder Decoder, extractor Extractor) *Cache {
	return &Cache{
		decoder:   decoder,
		extractor: extractor,
		params:    extractor.Params(),
		entries:   make(map[string]*entry),
	}
}

// Descriptors returns the descriptor set for the reference image at path,
// computing and memoizing it if needed. An unreadable or undecodable file is
// an error; a decodable photo with no extractable features is not, it yields
// an empty set (the candidate simply cannot score on that image).
func (c *Cache) Descriptors(path string) (features.DescriptorSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat reference image: %w", err)
	}
	modTime := info.ModTime().UnixNano()
	size := info.Size()

	key := path + "|" + c.params

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && cached.modTime == modTime && cached.size == size {
		return cached.descriptors, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference image: %w", err)
	}
	gray, err := c.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode reference image %s: %w", path, err)
	}

	descriptors, err := c.extractor.Extract(gray)
	if err != nil && !errors.Is(err, features.ErrNoFeatures) {
		return nil, fmt.Errorf("extract reference descriptors: %w", err)
	}

	fresh := &entry{modTime: modTime, size: size, descriptors: descriptors}
	c.mu.Lock()
	c.entries[key] = fresh
	c.mu.Unlock()

	return descriptors, nil
}

// Len returns the number of memoized reference images.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
