// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/monitor"
	"github.com/wfunc/pokerlobby/room"
	"github.com/wfunc/pokerlobby/session"
)

// SessionBroadcaster 按连接ID发送消息. A failed send is logged, counted and the
// connection closed; the read loop then reports the disconnect as usual.
type SessionBroadcaster struct {
	sessionManager *session.Manager
	monitor        *monitor.Monitor
}

var _ room.Broadcaster = (*SessionBroadcaster)(nil)

func NewSessionBroadcaster(sessionManager *session.Manager, mon *monitor.Monitor) *SessionBroadcaster {
	return &SessionBroadcaster{
		sessionManager: sessionManager,
		monitor:        mon,
	}
}

func (b *SessionBroadcaster) Send(id string, msg string) {
	s, ok := b.sessionManager.Get(id)
	if !ok {
		return
	}
	if err := s.Send(msg); err != nil {
		logger.Log.Warnw("send failed, closing connection", "session", id, "error", err)
		b.monitor.IncSendFailures()
		s.Close()
	}
}

// Broadcast sends msg to every id; one dead connection never stops the rest.
func (b *SessionBroadcaster) Broadcast(ids []string, msg string) {
	for _, id := range ids {
		b.Send(id, msg)
	}
}
