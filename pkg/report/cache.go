package report

import (
	"container/list"
	"sync"

	"github.com/xuri/excelize/v2"
)

// workbookCache holds open source workbooks so several Sources rows reading
// the same file share one handle. Least recently used workbooks are closed
// when the cache is full.
type workbookCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*workbookEntry
	lru     *list.List
}

type workbookEntry struct {
	key     string
	file    *excelize.File
	element *list.Element
}

func newWorkbookCache(maxSize int) *workbookCache {
	return &workbookCache{
		maxSize: maxSize,
		entries: make(map[string]*workbookEntry),
		lru:     list.New(),
	}
}

// get returns the cached workbook for key, opening it with open on a miss.
func (c *workbookCache) get(key string, open func() (*excelize.File, error)) (*excelize.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.lru.MoveToFront(entry.element)
		return entry.file, nil
	}

	file, err := open()
	if err != nil {
		return nil, err
	}

	if c.maxSize > 0 && c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			evicted := oldest.Value.(*workbookEntry)
			evicted.file.Close()
			delete(c.entries, evicted.key)
			c.lru.Remove(oldest)
		}
	}

	entry := &workbookEntry{key: key, file: file}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
	return file, nil
}

// Close closes every cached workbook.
func (c *workbookCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, entry := range c.entries {
		if err := entry.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.entries = make(map[string]*workbookEntry)
	c.lru.Init()
	return firstErr
}
