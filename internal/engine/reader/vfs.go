package reader

import (
	"os"
	"sync"

	"github.com/zeebo/xxh3"

	"qmakemodel/internal/shared/observability"
	"qmakemodel/internal/shared/util"
)

const defaultVFSEntries = 2048

type contents struct {
	data []byte
	sum  uint64
}

// VFS caches project file contents and their parse trees. Parse trees are
// reused while the fingerprint of the cached contents matches.
type VFS struct {
	files  *util.LRU[string, contents]
	parsed *util.LRU[string, *File]

	mu        sync.Mutex
	overrides map[string]contents
}

func NewVFS(entries int) *VFS {
	if entries <= 0 {
		entries = defaultVFSEntries
	}
	return &VFS{
		files:     util.NewLRU[string, contents](entries),
		parsed:    util.NewLRU[string, *File](entries),
		overrides: make(map[string]contents),
	}
}

// SetContents pins in-memory contents for path, shadowing the disk.
func (v *VFS) SetContents(path string, data []byte) {
	path = util.CleanPath(path)
	v.mu.Lock()
	v.overrides[path] = contents{data: data, sum: xxh3.Hash(data)}
	v.mu.Unlock()
	v.parsed.Remove(path)
}

// ClearContents removes an in-memory override.
func (v *VFS) ClearContents(path string) {
	path = util.CleanPath(path)
	v.mu.Lock()
	delete(v.overrides, path)
	v.mu.Unlock()
	v.Discard(path)
}

func (v *VFS) read(path string) (contents, error) {
	v.mu.Lock()
	c, ok := v.overrides[path]
	v.mu.Unlock()
	if ok {
		return c, nil
	}
	if c, ok := v.files.Get(path); ok {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return contents{}, err
	}
	c = contents{data: data, sum: xxh3.Hash(data)}
	v.files.Put(path, c)
	return c, nil
}

// Fingerprint returns the xxh3 hash of the contents the reader would see.
func (v *VFS) Fingerprint(path string) (uint64, error) {
	c, err := v.read(util.CleanPath(path))
	if err != nil {
		return 0, err
	}
	return c.sum, nil
}

// Exists reports whether path can be read through the cache.
func (v *VFS) Exists(path string) bool {
	path = util.CleanPath(path)
	v.mu.Lock()
	_, ok := v.overrides[path]
	v.mu.Unlock()
	if ok {
		return true
	}
	if _, ok := v.files.Get(path); ok {
		return true
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// Parse returns the parse tree for path, from cache when the contents
// fingerprint is unchanged.
func (v *VFS) Parse(path string) (*File, error) {
	path = util.CleanPath(path)
	c, err := v.read(path)
	if err != nil {
		return nil, err
	}
	if f, ok := v.parsed.Get(path); ok && f.Fingerprint == c.sum {
		observability.ReaderCacheHitsTotal.Inc()
		return f, nil
	}
	observability.ReaderCacheMissesTotal.Inc()
	f, err := Parse(path, c.data)
	if err != nil {
		return nil, err
	}
	f.Fingerprint = c.sum
	v.parsed.Put(path, f)
	return f, nil
}

// InvalidateCache drops every parse tree but keeps file contents.
func (v *VFS) InvalidateCache() {
	v.parsed.Purge()
}

// InvalidateContents drops file contents and parse trees. In-memory
// overrides survive.
func (v *VFS) InvalidateContents() {
	v.files.Purge()
	v.parsed.Purge()
}

// Discard forgets everything cached for one file.
func (v *VFS) Discard(path string) {
	path = util.CleanPath(path)
	v.files.Remove(path)
	v.parsed.Remove(path)
}

// DiscardUnder forgets every cached file below dir.
func (v *VFS) DiscardUnder(dir string) int {
	match := func(p string) bool { return util.HasPathPrefix(p, dir) }
	n := v.files.RemoveIf(match)
	v.parsed.RemoveIf(match)
	return n
}
