package room

// Broadcaster delivers text to connections by id. It is defined here so the
// room does not depend on the session layer; broadcast.SessionBroadcaster
// implements it. Delivery never blocks and failures are handled by the
// implementation, so a room never sees a send error.
type Broadcaster interface {
	Send(id string, msg string)
	Broadcast(ids []string, msg string)
}

// Listener is told about lifecycle transitions. Both hooks are invoked with the
// room's lock held, exactly once each per room.
type Listener interface {
	OnRoomStarted(r *Room)
	OnRoomEnded(r *Room, players []string, spectators []string)
}

// Player is what a room needs from a connection record.
type Player interface {
	GetID() string
	Chips() uint64
	SetChips(chips uint64)
}
