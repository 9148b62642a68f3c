// room/manager.go
package room

import (
	"cmp"
	"math/rand"
	"slices"
	"sync"

	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/network"
)

// maxRoomID bounds the room id counter; ids wrap back to 1 after it.
const maxRoomID = 2_000_000_000

// Stats is a point-in-time view of the directory.
type Stats struct {
	OpenRoomID      int64
	OpenRoomPlayers int
	ActiveRooms     int
	Bindings        int
}

// Manager 管理所有房间: it owns the id counter, the single room accepting joins,
// the connection to room bindings and the registry of running rooms.
//
// Lock order is room then manager. Room callbacks arrive with the room locked
// and may take m.mutex; the manager never calls into a room while holding it.
type Manager struct {
	cfg         Config
	broadcaster Broadcaster

	mutex    sync.Mutex
	nextID   int64
	open     *Room
	active   map[int64]*Room
	bindings map[string]*Room
}

func NewManager(cfg Config, broadcaster Broadcaster) *Manager {
	m := &Manager{
		cfg:         cfg,
		broadcaster: broadcaster,
		nextID:      1,
		active:      make(map[int64]*Room),
		bindings:    make(map[string]*Room),
	}
	m.open = m.newRoomLocked()
	return m
}

func (m *Manager) newRoomLocked() *Room {
	id := m.nextID
	m.nextID++
	if m.nextID > maxRoomID {
		m.nextID = 1
	}
	cfg := m.cfg
	if cfg.Rand != nil {
		// rooms run in parallel; each gets its own source
		cfg.Rand = rand.New(rand.NewSource(m.cfg.Rand.Int63()))
	}
	r := NewRoom(id, cfg, m.broadcaster, m)
	logger.Log.Debugw("room created", "room", id)
	return r
}

// HandleMessage routes one inbound line from p.
func (m *Manager) HandleMessage(p Player, raw string) {
	req := network.ParseRequest(raw)
	switch req.Command {
	case network.CmdJoin:
		m.Join(p, req.Name)
	case network.CmdSpectate:
		m.Spectate(p.GetID())
	default:
		r, ok := m.Room(p.GetID())
		if !ok {
			m.broadcaster.Send(p.GetID(), network.Unrecognized())
			return
		}
		r.HandleAction(p.GetID(), req)
	}
}

// Join seats p in the open room. A connection already bound to a room is ignored.
func (m *Manager) Join(p Player, name string) bool {
	id := p.GetID()
	for {
		r, ok := m.bind(id)
		if !ok {
			logger.Log.Debugw("join ignored, already bound", "player", id)
			return false
		}
		if r.AddPlayer(p, name) {
			return true
		}
		// the room started or filled between bind and add
		m.unbind(id, r)
		m.replaceOpen(r)
	}
}

// Spectate attaches id to the open room as a watcher.
func (m *Manager) Spectate(id string) bool {
	for {
		r, ok := m.bind(id)
		if !ok {
			return false
		}
		if r.AddSpectator(id) {
			return true
		}
		m.unbind(id, r)
		m.replaceOpen(r)
	}
}

// Disconnect forgets id and removes it from its room.
func (m *Manager) Disconnect(id string) {
	m.mutex.Lock()
	r, ok := m.bindings[id]
	delete(m.bindings, id)
	m.mutex.Unlock()

	if ok {
		r.Remove(id)
	}
}

// Room returns the room id is bound to.
func (m *Manager) Room(id string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	r, ok := m.bindings[id]
	return r, ok
}

// OpenRoom returns the room currently accepting joins.
func (m *Manager) OpenRoom() *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.open
}

// ActiveRoom looks up a running room.
func (m *Manager) ActiveRoom(id int64) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	r, ok := m.active[id]
	return r, ok
}

// ActiveRooms returns the running rooms ordered by id.
func (m *Manager) ActiveRooms() []*Room {
	m.mutex.Lock()
	rooms := make([]*Room, 0, len(m.active))
	for _, r := range m.active {
		rooms = append(rooms, r)
	}
	m.mutex.Unlock()

	slices.SortFunc(rooms, func(a, b *Room) int { return cmp.Compare(a.ID, b.ID) })
	return rooms
}

func (m *Manager) Stats() Stats {
	m.mutex.Lock()
	open := m.open
	stats := Stats{
		OpenRoomID:  open.ID,
		ActiveRooms: len(m.active),
		Bindings:    len(m.bindings),
	}
	m.mutex.Unlock()

	stats.OpenRoomPlayers = open.PlayerCount()
	return stats
}

// --- Listener ---

func (m *Manager) OnRoomStarted(r *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.active[r.ID] = r
	if m.open == r {
		m.open = m.newRoomLocked()
	}
	logger.Log.Infow("room started", "room", r.ID, "next_open", m.open.ID, "active", len(m.active))
	m.cfg.Monitor.IncRoomsStarted()
	m.cfg.Monitor.SetActiveRooms(len(m.active))
}

func (m *Manager) OnRoomEnded(r *Room, players []string, spectators []string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, ids := range [][]string{players, spectators} {
		for _, id := range ids {
			if m.bindings[id] == r {
				delete(m.bindings, id)
			}
		}
	}
	delete(m.active, r.ID)
	if m.open == r {
		m.open = m.newRoomLocked()
	}
	logger.Log.Infow("room ended", "room", r.ID, "active", len(m.active))
	m.cfg.Monitor.IncRoomsEnded()
	m.cfg.Monitor.SetActiveRooms(len(m.active))
}

// --- bindings ---

// bind binds id to the open room unless it is already bound somewhere.
func (m *Manager) bind(id string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, bound := m.bindings[id]; bound {
		return nil, false
	}
	m.bindings[id] = m.open
	return m.open, true
}

func (m *Manager) unbind(id string, r *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.bindings[id] == r {
		delete(m.bindings, id)
	}
}

// replaceOpen swaps in a fresh open room if r is still marked open but no
// longer accepts joins, which happens when a room fills without starting.
func (m *Manager) replaceOpen(r *Room) {
	accepting := r.Accepting()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.open == r && !accepting {
		m.open = m.newRoomLocked()
	}
}
