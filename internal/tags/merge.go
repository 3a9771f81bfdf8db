// internal/tags/merge.go
package tags

import (
	"sort"
	"time"
)

// Snapshot is the sorted, deduplicated set of tags known after one merge.
// A Snapshot is never mutated once published.
type Snapshot struct {
	Tags []Record  `json:"tags"`
	At   time.Time `json:"at"`
}

// Find returns the tag with the given id.
func (s Snapshot) Find(id int) (Record, bool) {
	i := sort.Search(len(s.Tags), func(i int) bool { return s.Tags[i].ID >= id })
	if i < len(s.Tags) && s.Tags[i].ID == id {
		return s.Tags[i], true
	}
	return Record{}, false
}

// Merge reconciles a freshly read batch against the previous snapshot.
// Pure function: no IO, no clock, never fails.
//
//   - fresh tag with unknown battery that existed before: previous battery is kept
//   - fresh tag: Modified = now, Status New (first sighting) or Ready
//   - previous tag missing from fresh: kept as Fault while now-Modified <= idle,
//     dropped once idle is exceeded
//   - result sorted by tag id ascending
func Merge(prev Snapshot, fresh []Record, now time.Time, idle time.Duration) Snapshot {
	byID := make(map[int]Record, len(prev.Tags)+len(fresh))

	old := make(map[int]Record, len(prev.Tags))
	for _, t := range prev.Tags {
		old[t.ID] = t
	}

	for _, t := range fresh {
		// duplicate sighting in one batch (several anchors): keep a known battery
		if seen, ok := byID[t.ID]; ok && !t.BatteryKnown() {
			t.Battery = seen.Battery
		}

		p, existed := old[t.ID]
		if !t.BatteryKnown() && existed {
			t.Battery = p.Battery
		}

		t.Modified = now
		t.Status = StatusNew
		if existed {
			t.Status = StatusReady
		}
		byID[t.ID] = t
	}

	for id, p := range old {
		if _, ok := byID[id]; ok {
			continue
		}
		if now.Sub(p.Modified) > idle {
			continue
		}
		p.Status = StatusFault
		byID[id] = p
	}

	out := make([]Record, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return Snapshot{Tags: out, At: now}
}
