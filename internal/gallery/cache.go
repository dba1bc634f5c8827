package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrUnknownIdentity is returned when an identity has no cached samples.
var ErrUnknownIdentity = errors.New("unknown identity")

// Cache is the process-wide feature cache. One instance is constructed at
// startup and handed to the matcher and registration paths. Reads run
// concurrently against the in-memory snapshot; writes and rebuilds are
// serialized by a single writer lock and persisted on every change.
type Cache struct {
	path      string // persisted JSON file
	facesDir  string // directory of enrollment images, source of truth
	extractor Extractor

	mu         sync.RWMutex
	identities map[string][]FaceSample
	index      *Index
}

// New creates a cache handle. Call Load before first use.
func New(path, facesDir string, extractor Extractor) *Cache {
	return &Cache{
		path:       path,
		facesDir:   facesDir,
		extractor:  extractor,
		identities: make(map[string][]FaceSample),
	}
}

// Load reads the persisted cache. An unreadable or malformed file, or one
// written by a different backend, is a full-cache miss: the gallery is
// rebuilt from the enrollment images. Corruption is logged and recovered,
// never surfaced as fatal.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return c.rebuildAllLocked(ctx)
	}
	if err != nil {
		log.Printf("feature cache unreadable (%v), rebuilding from source images", err)
		return c.rebuildAllLocked(ctx)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Printf("feature cache corrupt (%v), rebuilding from source images", err)
		return c.rebuildAllLocked(ctx)
	}
	if file.Version != cacheVersion || file.Backend != c.extractor.Name() || file.Dim != c.extractor.Dim() {
		log.Printf("feature cache written by pipeline %s/dim %d, current %s/dim %d, rebuilding",
			file.Backend, file.Dim, c.extractor.Name(), c.extractor.Dim())
		return c.rebuildAllLocked(ctx)
	}
	if file.Identities == nil {
		file.Identities = make(map[string][]FaceSample)
	}

	c.identities = file.Identities
	c.rebuildIndexLocked()
	return nil
}

// Get returns the cached samples for an identity.
func (c *Cache) Get(identity string) ([]FaceSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	samples, ok := c.identities[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, identity)
	}
	out := make([]FaceSample, len(samples))
	copy(out, samples)
	return out, nil
}

// Has reports whether the identity has at least one cached sample.
func (c *Cache) Has(identity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.identities[identity]) > 0
}

// Identities lists the enrolled identity keys in sorted order.
func (c *Cache) Identities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.identities))
	for k := range c.identities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Put extracts features from the given enrollment images and appends them
// to the identity's samples, persisting the cache. Existing samples are
// never mutated; re-registration supersedes by appending.
func (c *Cache) Put(ctx context.Context, identity string, paths []string) ([]FaceSample, error) {
	samples := make([]FaceSample, 0, len(paths))
	for _, path := range paths {
		sample, err := c.extractSample(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", path, err)
		}
		samples = append(samples, sample)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.identities[identity] = append(c.identities[identity], samples...)
	c.rebuildIndexLocked()
	if err := c.saveLocked(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Invalidate drops an identity's cached samples and persists. The next
// staleness sweep re-extracts whatever enrollment images still exist.
func (c *Cache) Invalidate(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.identities[identity]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, identity)
	}
	delete(c.identities, identity)
	c.rebuildIndexLocked()
	return c.saveLocked()
}

// RebuildIfStale re-checks every identity's freshness tokens against the
// current source images and re-extracts only the identities that changed.
// Untracked images in the faces directory are picked up, samples whose
// source vanished are dropped. Returns the sorted set of rebuilt
// identities. Cost is bounded by the number of changed identities.
func (c *Cache) RebuildIfStale(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rebuilt := make(map[string]bool)

	for identity, samples := range c.identities {
		kept := samples[:0:0]
		for _, s := range samples {
			if s.fresh() {
				kept = append(kept, s)
				continue
			}
			rebuilt[identity] = true
			if _, err := os.Stat(s.Source); err != nil {
				continue // source gone, drop the sample
			}
			fresh, err := c.extractSample(ctx, s.Source)
			if err != nil {
				log.Printf("re-extracting %s for %s failed: %v", s.Source, identity, err)
				continue
			}
			kept = append(kept, fresh)
		}
		if len(kept) == 0 {
			delete(c.identities, identity)
		} else {
			c.identities[identity] = kept
		}
	}

	// Discover enrollment images the cache does not know about.
	tracked := make(map[string]bool)
	for _, samples := range c.identities {
		for _, s := range samples {
			tracked[s.Source] = true
		}
	}
	for _, path := range c.listSourceImages() {
		if tracked[path] {
			continue
		}
		identity := IdentityFromFilename(path)
		sample, err := c.extractSample(ctx, path)
		if err != nil {
			log.Printf("extracting untracked %s failed: %v", path, err)
			continue
		}
		c.identities[identity] = append(c.identities[identity], sample)
		rebuilt[identity] = true
	}

	if len(rebuilt) == 0 {
		return nil, nil
	}

	c.rebuildIndexLocked()
	if err := c.saveLocked(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rebuilt))
	for name := range rebuilt {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Snapshot returns an immutable view for lock-free matching. Readers keep
// using the snapshot they hold even while a registration is in flight.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	identities := make(map[string][]FaceSample, len(c.identities))
	for k, v := range c.identities {
		identities[k] = v // samples are immutable, sharing the slice is safe
	}
	return &Snapshot{
		identities: identities,
		dim:        c.extractor.Dim(),
		index:      c.index,
	}
}

// SampleCount returns the total number of cached samples.
func (c *Cache) SampleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, samples := range c.identities {
		n += len(samples)
	}
	return n
}

// rebuildAllLocked rebuilds the whole gallery from the enrollment image
// directory. Caller holds the writer lock.
func (c *Cache) rebuildAllLocked(ctx context.Context) error {
	c.identities = make(map[string][]FaceSample)

	for _, path := range c.listSourceImages() {
		identity := IdentityFromFilename(path)
		sample, err := c.extractSample(ctx, path)
		if err != nil {
			log.Printf("skipping %s during rebuild: %v", path, err)
			continue
		}
		c.identities[identity] = append(c.identities[identity], sample)
	}

	c.rebuildIndexLocked()
	return c.saveLocked()
}

// listSourceImages returns the enrollment images in deterministic order.
func (c *Cache) listSourceImages() []string {
	entries, err := os.ReadDir(c.facesDir)
	if err != nil {
		return nil
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(c.facesDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths
}

func (c *Cache) extractSample(ctx context.Context, path string) (FaceSample, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FaceSample{}, err
	}
	sum, err := fileChecksum(path)
	if err != nil {
		return FaceSample{}, err
	}
	vec, err := c.extractor.ExtractFile(ctx, path)
	if err != nil {
		return FaceSample{}, err
	}
	return FaceSample{
		Source:     path,
		Checksum:   sum,
		ModTime:    info.ModTime(),
		CapturedAt: time.Now().UTC(),
		Vector:     vec,
	}, nil
}

// saveLocked persists the cache atomically (temp file + rename). Caller
// holds the writer lock. Logically each write is scoped to one identity
// even though the whole file is rewritten.
func (c *Cache) saveLocked() error {
	file := cacheFile{
		Version:    cacheVersion,
		Backend:    c.extractor.Name(),
		Dim:        c.extractor.Dim(),
		Identities: c.identities,
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal feature cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write feature cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace feature cache: %w", err)
	}
	return nil
}

func (c *Cache) rebuildIndexLocked() {
	c.index = buildIndex(c.identities)
}

// Snapshot is a point-in-time, read-only view of the gallery.
type Snapshot struct {
	identities map[string][]FaceSample
	dim        int
	index      *Index
}

// NewSnapshot builds a standalone snapshot from an identity map. The
// matcher takes snapshots, not the cache itself, so callers can score
// against galleries assembled from other sources.
func NewSnapshot(identities map[string][]FaceSample, dim int) *Snapshot {
	return &Snapshot{
		identities: identities,
		dim:        dim,
		index:      buildIndex(identities),
	}
}

// All exposes the identity map. Callers must treat it as read-only.
func (s *Snapshot) All() map[string][]FaceSample {
	return s.identities
}

// Dim is the vector length of every sample in this snapshot.
func (s *Snapshot) Dim() int {
	return s.dim
}

// SampleCount returns the total number of samples in the snapshot.
func (s *Snapshot) SampleCount() int {
	n := 0
	for _, samples := range s.identities {
		n += len(samples)
	}
	return n
}

// Candidates returns the identities worth scoring against the probe.
// Small galleries are scanned exhaustively; past the shortlist cutoff the
// HNSW index narrows the field and the matcher rescores exactly.
func (s *Snapshot) Candidates(probe []float32) []string {
	if s.index != nil && s.SampleCount() > shortlistCutoff {
		if shortlist := s.index.Candidates(probe, shortlistK); len(shortlist) > 0 {
			return shortlist
		}
	}
	keys := make([]string, 0, len(s.identities))
	for k := range s.identities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
