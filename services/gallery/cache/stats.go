package cache

import "sync/atomic"

// Stats are advisory observability counters owned by one Store instance.
// They never affect correctness and reset with the instance.
type Stats struct {
	hits        atomic.Int64
	misses      atomic.Int64
	errors      atomic.Int64
	builds      atomic.Int64
	buildTimeMs atomic.Int64
}

type StatsSnapshot struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Errors         int64   `json:"errors"`
	Builds         int64   `json:"builds"`
	HitRate        float64 `json:"hitRate"`
	AvgBuildTimeMs float64 `json:"avgBuildTimeMs"`
}

func (s *Stats) recordHit() { s.hits.Add(1) }

func (s *Stats) recordMiss() { s.misses.Add(1) }

func (s *Stats) recordError() { s.errors.Add(1) }

// RecordBuild tracks how long it took to rebuild a collection that was not
// in the cache.
func (s *Stats) RecordBuild(durationMs int64) {
	s.builds.Add(1)
	s.buildTimeMs.Add(durationMs)
}

func (s *Stats) Snapshot() StatsSnapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()
	builds := s.builds.Load()

	snapshot := StatsSnapshot{
		Hits:   hits,
		Misses: misses,
		Errors: s.errors.Load(),
		Builds: builds,
	}
	if total := hits + misses; total > 0 {
		snapshot.HitRate = float64(hits) / float64(total)
	}
	if builds > 0 {
		snapshot.AvgBuildTimeMs = float64(s.buildTimeMs.Load()) / float64(builds)
	}
	return snapshot
}
