// Package presence is the shared store of who is where. It keeps the
// latest reported position per user id, indexed in a quadtree for
// proximity scans, and expires anything older than the presence TTL.
package presence

import (
	"log"
	"sync"
	"time"

	"github.com/asim/quadtree"
)

// Record is a user's last known position
type Record struct {
	UserID    string    `json:"user_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Neighbor is one nearby user as reported to a client
type Neighbor struct {
	UserID     string  `json:"user_id"`
	DistanceKM float64 `json:"distance_km"`
}

// Registry is the presence store shared by all sessions
type Registry struct {
	mu     sync.RWMutex
	tree   *quadtree.QuadTree
	points map[string]*quadtree.Point
	// points the tree rejected (coordinates outside its bounds); no
	// geographic validation happens at this layer, so they still count
	// and still get scanned, just without the index
	overflow map[string]*quadtree.Point
}

func newTree() *quadtree.QuadTree {
	center := quadtree.NewPoint(0, 0, nil)
	half := quadtree.NewPoint(90, 180, nil)
	boundary := quadtree.NewAABB(center, half)
	return quadtree.New(boundary, 0, nil)
}

// NewRegistry creates an empty presence registry
func NewRegistry() *Registry {
	return &Registry{
		tree:     newTree(),
		points:   make(map[string]*quadtree.Point),
		overflow: make(map[string]*quadtree.Point),
	}
}

// Upsert stores the latest position for a user, replacing any existing record
func (r *Registry) Upsert(userID string, lat, lon float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsert(userID, lat, lon, now)
}

func (r *Registry) upsert(userID string, lat, lon float64, now time.Time) {
	// remove existing if updating
	if existing, ok := r.points[userID]; ok {
		r.tree.Remove(existing)
		delete(r.overflow, userID)
	}

	record := &Record{
		UserID:    userID,
		Lat:       lat,
		Lon:       lon,
		UpdatedAt: now,
	}

	point := quadtree.NewPoint(lat, lon, record)
	if !r.tree.Insert(point) {
		log.Printf("[registry] cannot index %s at (%.4f, %.4f), scanning unindexed", userID, lat, lon)
		r.overflow[userID] = point
	}

	r.points[userID] = point
}

// Prune removes every record older than the TTL and returns how many went
func (r *Registry) Prune(ttl time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prune(ttl, now)
}

func (r *Registry) prune(ttl time.Duration, now time.Time) int {
	var stale []string
	for id, point := range r.points {
		record, ok := point.Data().(*Record)
		if !ok {
			continue
		}
		if now.Sub(record.UpdatedAt) > ttl {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		if point, ok := r.points[id]; ok {
			r.tree.Remove(point)
			delete(r.points, id)
			delete(r.overflow, id)
		}
	}

	if len(stale) > 0 {
		log.Printf("[registry] pruned %d stale records", len(stale))
	}

	return len(stale)
}

// NeighborsWithin counts the other non-stale users within radiusKM of a
// position and returns up to sampleLimit of them with distances rounded
// to 3 decimal places.
func (r *Registry) NeighborsWithin(userID string, lat, lon, radiusKM float64, now time.Time, ttl time.Duration, sampleLimit int) (int, []Neighbor) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.neighborsWithin(userID, lat, lon, radiusKM, now, ttl, sampleLimit)
}

func (r *Registry) neighborsWithin(userID string, lat, lon, radiusKM float64, now time.Time, ttl time.Duration, sampleLimit int) (int, []Neighbor) {
	center := quadtree.NewPoint(lat, lon, nil)
	half := center.HalfPoint(radiusKM * 1000)
	boundary := quadtree.NewAABB(center, half)

	filter := func(p *quadtree.Point) bool {
		record, ok := p.Data().(*Record)
		if !ok {
			return false
		}
		if record.UserID == userID {
			return false
		}
		return now.Sub(record.UpdatedAt) <= ttl
	}

	points := r.tree.KNearest(boundary, len(r.points), filter)

	// records the index rejected are scanned the slow way
	for _, p := range r.overflow {
		if filter(p) {
			points = append(points, p)
		}
	}

	count := 0
	samples := []Neighbor{}

	for _, p := range points {
		record, ok := p.Data().(*Record)
		if !ok {
			continue
		}
		// the quadtree query is a bounding box, the radius is a circle
		d := haversine(lat, lon, record.Lat, record.Lon)
		if d > radiusKM {
			continue
		}
		count++
		if len(samples) < sampleLimit {
			samples = append(samples, Neighbor{
				UserID:     record.UserID,
				DistanceKM: roundKM(d),
			})
		}
	}

	return count, samples
}

// Report is the atomic unit for one location event: store the reporter's
// position, prune stale records, then scan for neighbors. Holds the lock
// across the whole sequence so concurrent reporters never see a half
// applied update.
func (r *Registry) Report(userID string, lat, lon, radiusKM float64, ttl time.Duration, sampleLimit int, now time.Time) (int, []Neighbor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upsert(userID, lat, lon, now)
	r.prune(ttl, now)
	return r.neighborsWithin(userID, lat, lon, radiusKM, now, ttl, sampleLimit)
}

// Active returns the number of non-stale users
func (r *Registry) Active(ttl time.Duration, now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, point := range r.points {
		record, ok := point.Data().(*Record)
		if !ok {
			continue
		}
		if now.Sub(record.UpdatedAt) <= ttl {
			count++
		}
	}
	return count
}

// Get returns a user's record, or nil if absent
func (r *Registry) Get(userID string) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if point, ok := r.points[userID]; ok {
		if record, ok := point.Data().(*Record); ok {
			return record
		}
	}
	return nil
}

// StartPruneLoop starts a goroutine that periodically removes stale records
func (r *Registry) StartPruneLoop(interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			r.Prune(ttl, time.Now())
		}
	}()
}
