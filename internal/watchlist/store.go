package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Beacon is one tracked tag. ID is the 4-hex-char minor ID.
type Beacon struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HomeZoneID string `json:"home_zone_id,omitempty"`
}

// Zone is a physical area (a floor) with the siren that covers it and the
// gateways whose sightings place a beacon inside it.
type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SirenEUI    string   `json:"siren_eui,omitempty"`
	GatewayEUIs []string `json:"gateway_euis,omitempty"`
}

type File struct {
	Zones   []Zone   `json:"zones"`
	Beacons []Beacon `json:"beacons"`
}

type table struct {
	beacons   map[string]Beacon // minor ID -> beacon
	zones     map[string]Zone   // zone ID -> zone
	byGateway map[string]string // gateway EUI (lowercase) -> zone ID
}

// Store holds the watchlist and zone topology. Lookups read an immutable
// table swapped atomically on reload, so in-flight readers never observe a
// partial update. Writers (Reload, Discover) serialize on mu.
type Store struct {
	mu   sync.Mutex
	tab  atomic.Value
	path string
}

func NewStore(path string) *Store {
	s := &Store{path: path}
	s.tab.Store(buildTable(File{}))
	return s
}

// Load reads the devices file. A missing or malformed file is not fatal:
// the store keeps its current (possibly empty) table and the caller decides
// whether to log the error.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.tab.Store(buildTable(f))
	s.mu.Unlock()
	return nil
}

func (s *Store) Reload() error {
	return s.Load()
}

// Replace swaps in a new watchlist wholesale, persisting it to the devices
// file when one is configured.
func (s *Store) Replace(f File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(s.path, data, 0o644); err != nil {
			return err
		}
	}
	s.tab.Store(buildTable(f))
	return nil
}

func buildTable(f File) *table {
	t := &table{
		beacons:   make(map[string]Beacon, len(f.Beacons)),
		zones:     make(map[string]Zone, len(f.Zones)),
		byGateway: make(map[string]string),
	}
	for _, b := range f.Beacons {
		id := strings.ToUpper(strings.TrimSpace(b.ID))
		if id == "" {
			continue
		}
		b.ID = id
		if b.Name == "" {
			b.Name = "Beacon " + id
		}
		t.beacons[id] = b
	}
	for _, z := range f.Zones {
		if z.ID == "" {
			continue
		}
		t.zones[z.ID] = z
		if z.SirenEUI != "" {
			t.byGateway[strings.ToLower(z.SirenEUI)] = z.ID
		}
		for _, eui := range z.GatewayEUIs {
			if eui != "" {
				t.byGateway[strings.ToLower(eui)] = z.ID
			}
		}
	}
	return t
}

func (s *Store) table() *table {
	return s.tab.Load().(*table)
}

// Resolve reports whether a beacon ID is tracked. The reported ID may carry
// a major prefix ("001064AF"); a watchlist entry matches when its minor ID
// is a suffix of, or contained in, the reported ID.
func (s *Store) Resolve(beaconID string) (Beacon, bool) {
	t := s.table()
	id := strings.ToUpper(strings.TrimSpace(beaconID))
	if id == "" {
		return Beacon{}, false
	}
	if b, ok := t.beacons[id]; ok {
		return b, true
	}
	for tracked, b := range t.beacons {
		if strings.Contains(id, tracked) {
			return b, true
		}
	}
	return Beacon{}, false
}

// Discover inserts an untracked beacon with a generated display name.
// Callers gate this behind the auto-discovery policy; it mutates the
// watchlist from network input and is off by default.
func (s *Store) Discover(minorID string) Beacon {
	id := strings.ToUpper(strings.TrimSpace(minorID))
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table()
	if b, ok := t.beacons[id]; ok {
		return b
	}
	next := &table{
		beacons:   make(map[string]Beacon, len(t.beacons)+1),
		zones:     t.zones,
		byGateway: t.byGateway,
	}
	for k, v := range t.beacons {
		next.beacons[k] = v
	}
	b := Beacon{ID: id, Name: "Auto-Discovered " + id}
	next.beacons[id] = b
	s.tab.Store(next)
	return b
}

// ZoneOf maps a reporting gateway or siren EUI to its zone ID. Returns
// false for unknown EUIs.
func (s *Store) ZoneOf(gatewayEUI string) (string, bool) {
	if gatewayEUI == "" {
		return "", false
	}
	zoneID, ok := s.table().byGateway[strings.ToLower(gatewayEUI)]
	return zoneID, ok
}

func (s *Store) HomeZoneOf(beaconID string) (string, bool) {
	b, ok := s.Resolve(beaconID)
	if !ok || b.HomeZoneID == "" {
		return "", false
	}
	return b.HomeZoneID, true
}

// SirenFor returns the siren EUI covering a zone, or "" when the zone is
// unknown or has no siren.
func (s *Store) SirenFor(zoneID string) string {
	z, ok := s.table().zones[zoneID]
	if !ok {
		return ""
	}
	return z.SirenEUI
}

func (s *Store) ZoneName(zoneID string) string {
	z, ok := s.table().zones[zoneID]
	if !ok {
		return ""
	}
	return z.Name
}

// Export returns the current table as a File for the API and for saving.
func (s *Store) Export() File {
	t := s.table()
	f := File{
		Zones:   make([]Zone, 0, len(t.zones)),
		Beacons: make([]Beacon, 0, len(t.beacons)),
	}
	for _, z := range t.zones {
		f.Zones = append(f.Zones, z)
	}
	for _, b := range t.beacons {
		f.Beacons = append(f.Beacons, b)
	}
	return f
}

func (s *Store) Len() int {
	return len(s.table().beacons)
}
