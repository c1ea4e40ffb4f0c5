package memory

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// WorkingMemory is ephemeral, LRU-bounded, TTL-expired short-term state -
// current conversation context, in-flight scratch results, active task
// state - grounded on working_memory_store.py's OrderedDict-based LRU with
// background TTL sweep, translated to a list.List + map kept under a mutex
// instead of a goroutine sweep (expiry is checked lazily, on access, which
// is sufficient without Python's cooperative asyncio cleanup loop).
type WorkingMemory struct {
	cfg Config

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element

	tokenTotal int
	costTotal  float64
}

type workingEntry struct {
	key   string
	entry *Entry
}

func NewWorkingMemory(cfg Config) *WorkingMemory {
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &WorkingMemory{
		cfg:     cfg,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (m *WorkingMemory) Guarantees() map[Guarantee]bool {
	return map[Guarantee]bool{GuaranteeEphemeral: true}
}

func (m *WorkingMemory) Store(key string, content interface{}, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := estimateTokens(content)
	cost := estimateCost(tokens)
	entry := &Entry{
		Key:        key,
		Content:    content,
		Metadata:   metadata,
		Timestamp:  time.Now(),
		TokenUsage: tokens,
		CostUSD:    cost,
	}
	if metadata == nil {
		entry.Metadata = map[string]interface{}{}
	}

	if el, ok := m.entries[key]; ok {
		m.order.Remove(el)
	}
	el := m.order.PushBack(&workingEntry{key: key, entry: entry})
	m.entries[key] = el

	m.tokenTotal += tokens
	m.costTotal += cost

	m.enforceSizeLimit()
	return nil
}

// enforceSizeLimit must be called with mu held.
func (m *WorkingMemory) enforceSizeLimit() {
	if m.cfg.MaxEntries <= 0 {
		return
	}
	for m.order.Len() > m.cfg.MaxEntries {
		front := m.order.Front()
		if front == nil {
			return
		}
		we := front.Value.(*workingEntry)
		m.order.Remove(front)
		delete(m.entries, we.key)
	}
}

// expired must be called with mu held.
func (m *WorkingMemory) expired(entry *Entry) bool {
	if m.cfg.TTL <= 0 {
		return false
	}
	return time.Since(entry.Timestamp) > m.cfg.TTL
}

func (m *WorkingMemory) Retrieve(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	we := el.Value.(*workingEntry)
	if m.expired(we.entry) {
		m.order.Remove(el)
		delete(m.entries, key)
		return nil, false
	}

	we.entry.AccessCount++
	m.order.MoveToBack(el)
	return we.entry, true
}

func (m *WorkingMemory) Search(query string, limit int, filters map[string]interface{}) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	var results []*Entry
	var expiredKeys []string
	for el := m.order.Front(); el != nil; el = el.Next() {
		we := el.Value.(*workingEntry)
		if m.expired(we.entry) {
			expiredKeys = append(expiredKeys, we.key)
			continue
		}
		if !containsFold(contentString(we.entry.Content), query) {
			continue
		}
		if !matchesFilters(we.entry.Metadata, filters) {
			continue
		}
		results = append(results, we.entry)
		if len(results) >= limit {
			break
		}
	}
	for _, k := range expiredKeys {
		if el, ok := m.entries[k]; ok {
			m.order.Remove(el)
			delete(m.entries, k)
		}
	}
	return results, nil
}

func (m *WorkingMemory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return false
	}
	m.order.Remove(el)
	delete(m.entries, key)
	return true
}

func (m *WorkingMemory) Clear(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pattern == "" {
		count := m.order.Len()
		m.order = list.New()
		m.entries = make(map[string]*list.Element)
		return count
	}

	var toRemove []string
	for k := range m.entries {
		if hasPrefix(k, pattern) {
			toRemove = append(toRemove, k)
		}
	}
	for _, k := range toRemove {
		el := m.entries[k]
		m.order.Remove(el)
		delete(m.entries, k)
	}
	return len(toRemove)
}

func (m *WorkingMemory) ListKeys(pattern string, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	var keys []string
	for el := m.order.Front(); el != nil; el = el.Next() {
		we := el.Value.(*workingEntry)
		if pattern != "" && !hasPrefix(we.key, pattern) {
			continue
		}
		keys = append(keys, we.key)
		if len(keys) >= limit {
			break
		}
	}
	return keys
}

func (m *WorkingMemory) UsageStats() UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return UsageStats{
		EntryCount: m.order.Len(),
		Backend:    "memory",
		Tokens:     m.tokenTotal,
		CostUSD:    m.costTotal,
	}
}

// GetWorkingContext returns every live entry as a plain context map, for an
// agent iteration's prompt assembly (spec.md §4.6's "read relevant memory").
func (m *WorkingMemory) GetWorkingContext() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx := make(map[string]interface{})
	for el := m.order.Front(); el != nil; el = el.Next() {
		we := el.Value.(*workingEntry)
		if m.expired(we.entry) {
			continue
		}
		ctx[we.key] = we.entry.Content
	}
	return ctx
}

func hasPrefix(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	return s[:len(prefix)] == prefix
}

func contentString(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
