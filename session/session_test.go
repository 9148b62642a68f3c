package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	sent   []string
	closed bool
}

func (m *MockConnection) Send(text string) error {
	m.sent = append(m.sent, text)
	return nil
}
func (m *MockConnection) Close() error                        { m.closed = true; return nil }
func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}
func (m *MockConnection) ReadMessage() (string, error)        { return "", nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	require.NotNil(t, manager)
	require.NotNil(t, manager.sessions)
	assert.Equal(t, 0, manager.Count())
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	assert.Equal(t, 1, manager.Count())

	retrieved, exists := manager.Get(sessionID)
	require.True(t, exists)
	assert.Same(t, sess, retrieved)

	manager.Remove(sessionID)
	assert.Equal(t, 0, manager.Count())

	_, exists = manager.Get(sessionID)
	assert.False(t, exists)
}

func TestSession_SendAndClose(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s1", conn)

	require.NoError(t, sess.Send("game-over"))
	require.NoError(t, sess.Close())

	assert.Equal(t, []string{"game-over"}, conn.sent)
	assert.True(t, conn.closed)
}

func TestSession_Chips(t *testing.T) {
	sess := NewSession("s1", &MockConnection{})
	assert.Equal(t, uint64(0), sess.Chips())

	sess.SetChips(420)
	assert.Equal(t, uint64(420), sess.Chips())
}

func TestSession_Touch(t *testing.T) {
	sess := NewSession("s1", &MockConnection{})
	before := sess.LastActive()
	time.Sleep(time.Millisecond)

	sess.Touch()
	assert.True(t, sess.LastActive().After(before))
}
