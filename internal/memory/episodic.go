package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// EpisodicMemory is durable conversation/interaction history - indexed by
// type/participant/tag/date/outcome, with history retrieval and basic
// pattern analytics - grounded on episodic.py's Redis-backed store (string
// values per key, TTL, a side index set for enumeration, with filtering and
// analytics done application-side after a bulk read, exactly as the Python
// implementation does).
type EpisodicMemory struct {
	client     *redis.Client
	keyPrefix  string
	indexKey   string
	ttl        time.Duration
	defaultCtx context.Context

	mu         sync.Mutex
	tokenTotal int
	costTotal  float64
}

// NewEpisodicMemory wires an EpisodicMemory onto an existing Redis client.
// Tests construct client against a miniredis instance; production wires it
// against the pool-configured client internal/cache.RedisCache hands
// out.
func NewEpisodicMemory(client *redis.Client, cfg Config) *EpisodicMemory {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EpisodicMemory{
		client:     client,
		keyPrefix:  "episode:",
		indexKey:   "episode_idx",
		ttl:        ttl,
		defaultCtx: context.Background(),
	}
}

func (m *EpisodicMemory) Guarantees() map[Guarantee]bool {
	return map[Guarantee]bool{GuaranteeTTL: true}
}

func (m *EpisodicMemory) fullKey(key string) string { return m.keyPrefix + key }

func (m *EpisodicMemory) Store(key string, content interface{}, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
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

	data, err := json.Marshal(entry)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "episodic.store", err)
	}

	ctx := m.defaultCtx
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.fullKey(key), data, m.ttl)
	pipe.SAdd(ctx, m.indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.New(apperrors.KindUpstream, "episodic.store", err)
	}

	m.mu.Lock()
	m.tokenTotal += tokens
	m.costTotal += cost
	m.mu.Unlock()
	return nil
}

func (m *EpisodicMemory) load(key string) (*Entry, bool) {
	raw, err := m.client.Get(m.defaultCtx, m.fullKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (m *EpisodicMemory) Retrieve(key string) (*Entry, bool) {
	entry, ok := m.load(key)
	if !ok {
		return nil, false
	}
	entry.AccessCount++
	if data, err := json.Marshal(entry); err == nil {
		m.client.Set(m.defaultCtx, m.fullKey(key), data, redis.KeepTTL)
	}
	return entry, true
}

func (m *EpisodicMemory) allKeys() []string {
	keys, err := m.client.SMembers(m.defaultCtx, m.indexKey).Result()
	if err != nil {
		return nil
	}
	return keys
}

func (m *EpisodicMemory) Search(query string, limit int, filters map[string]interface{}) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var results []*Entry
	for _, key := range m.allKeys() {
		entry, ok := m.load(key)
		if !ok {
			continue
		}
		if !containsFold(contentString(entry.Content), query) {
			continue
		}
		if !matchesFilters(entry.Metadata, filters) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *EpisodicMemory) Delete(key string) bool {
	ctx := m.defaultCtx
	n, _ := m.client.Del(ctx, m.fullKey(key)).Result()
	m.client.SRem(ctx, m.indexKey, key)
	return n > 0
}

func (m *EpisodicMemory) Clear(pattern string) int {
	ctx := m.defaultCtx
	keys := m.allKeys()
	cleared := 0
	for _, key := range keys {
		if pattern != "" && !hasPrefix(key, pattern) {
			continue
		}
		if n, _ := m.client.Del(ctx, m.fullKey(key)).Result(); n > 0 {
			cleared++
		}
		m.client.SRem(ctx, m.indexKey, key)
	}
	return cleared
}

func (m *EpisodicMemory) ListKeys(pattern string, limit int) []string {
	if limit <= 0 {
		limit = 100
	}
	var keys []string
	for _, key := range m.allKeys() {
		if pattern != "" && !hasPrefix(key, pattern) {
			continue
		}
		keys = append(keys, key)
		if len(keys) >= limit {
			break
		}
	}
	return keys
}

func (m *EpisodicMemory) UsageStats() UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return UsageStats{
		EntryCount: len(m.allKeys()),
		Backend:    "redis",
		Tokens:     m.tokenTotal,
		CostUSD:    m.costTotal,
	}
}

// GetConversationHistory returns episodes tagged with the given participant.
func (m *EpisodicMemory) GetConversationHistory(participant string, limit int) ([]*Entry, error) {
	return m.Search("", limit, map[string]interface{}{"participant": participant})
}

// GetRecentEpisodes returns episodes from the last `hours`, optionally
// filtered by episode type.
func (m *EpisodicMemory) GetRecentEpisodes(hours int, episodeType string) ([]*Entry, error) {
	filters := map[string]interface{}{}
	if episodeType != "" {
		filters["type"] = episodeType
	}
	episodes, err := m.Search("", 100, filters)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	var recent []*Entry
	for _, e := range episodes {
		if !e.Timestamp.Before(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent, nil
}

// PatternAnalysis is the analytics shape returned by AnalyzePatterns,
// mirroring episodic.py's analyze_patterns().
type PatternAnalysis struct {
	TotalEpisodes      int            `json:"total_episodes"`
	Outcomes           map[string]int `json:"outcomes"`
	Sentiments         map[string]int `json:"sentiments"`
	TopTags            []TagCount     `json:"top_tags"`
	HourlyDistribution [24]int        `json:"hourly_distribution"`
	Insights           []string       `json:"insights"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// AnalyzePatterns computes outcome/sentiment/tag/hour-of-day statistics over
// up to 100 matching episodes, translating episodic.py's analyze_patterns.
func (m *EpisodicMemory) AnalyzePatterns(participant, episodeType string) (*PatternAnalysis, error) {
	filters := map[string]interface{}{}
	if participant != "" {
		filters["participant"] = participant
	}
	if episodeType != "" {
		filters["type"] = episodeType
	}
	episodes, err := m.Search("", 100, filters)
	if err != nil {
		return nil, err
	}
	result := &PatternAnalysis{Outcomes: map[string]int{}, Sentiments: map[string]int{}}
	if len(episodes) == 0 {
		return result, nil
	}

	tagFreq := map[string]int{}
	for _, e := range episodes {
		outcome, _ := e.Metadata["outcome"].(string)
		if outcome == "" {
			outcome = "unknown"
		}
		result.Outcomes[outcome]++

		sentiment, _ := e.Metadata["sentiment"].(string)
		if sentiment == "" {
			sentiment = "neutral"
		}
		result.Sentiments[sentiment]++

		if tags, ok := e.Metadata["tags"].([]interface{}); ok {
			for _, t := range tags {
				if tag, ok := t.(string); ok {
					tagFreq[tag]++
				}
			}
		}
		result.HourlyDistribution[e.Timestamp.Hour()]++
	}
	result.TotalEpisodes = len(episodes)

	for tag, count := range tagFreq {
		result.TopTags = append(result.TopTags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(result.TopTags, func(i, j int) bool { return result.TopTags[i].Count > result.TopTags[j].Count })
	if len(result.TopTags) > 5 {
		result.TopTags = result.TopTags[:5]
	}

	total := float64(result.TotalEpisodes)
	successful := result.Outcomes["success"] + result.Outcomes["sale"]
	if total > 0 {
		result.Insights = append(result.Insights, formatPercentInsight("Success rate", float64(successful)/total*100))
	}
	if total > 0 && float64(result.Sentiments["positive"])/total > 0.7 {
		result.Insights = append(result.Insights, "High positive sentiment in interactions")
	}
	peakHour, peakCount := 0, 0
	for h, c := range result.HourlyDistribution {
		if c > peakCount {
			peakHour, peakCount = h, c
		}
	}
	if float64(peakCount) > total*0.1 {
		result.Insights = append(result.Insights, formatHourInsight(peakHour))
	}

	return result, nil
}

func formatPercentInsight(label string, pct float64) string {
	return fmt.Sprintf("%s: %.1f%%", label, pct)
}

func formatHourInsight(hour int) string {
	return fmt.Sprintf("Peak activity at %d:00", hour)
}
