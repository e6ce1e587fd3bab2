package realtime

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records frames and can be made to fail
type fakeChannel struct {
	id     string
	userID string

	mu     sync.Mutex
	frames [][]byte
	fail   error
	closed bool
}

func newFakeChannel(userID, id string) *fakeChannel {
	return &fakeChannel{id: id, userID: userID}
}

func (c *fakeChannel) ID() string     { return c.id }
func (c *fakeChannel) UserID() string { return c.userID }

func (c *fakeChannel) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestRegistry() *ConnectionRegistry {
	return NewConnectionRegistry(8, nil, nil)
}

func TestConnectDisconnect(t *testing.T) {
	r := newTestRegistry()
	ch := newFakeChannel("u1", "c1")

	r.Connect("u1", ch)
	assert.True(t, r.IsConnected("u1"))
	assert.Equal(t, 1, r.ConnectionCount("u1"))
	assert.Equal(t, 1, r.TotalConnections())

	r.Disconnect("u1", ch)
	assert.False(t, r.IsConnected("u1"))
	assert.Equal(t, 0, r.ConnectionCount("u1"))
	assert.Equal(t, 0, r.TotalConnections())
	assert.Equal(t, 0, r.UserCount())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	ch := newFakeChannel("u1", "c1")

	r.Disconnect("u1", ch)
	r.Connect("u1", ch)
	r.Disconnect("u1", ch)
	r.Disconnect("u1", ch)

	assert.Equal(t, 0, r.TotalConnections())
	assert.Equal(t, 0, r.UserCount())
}

func TestConnectSameChannelTwiceCountsOnce(t *testing.T) {
	r := newTestRegistry()
	ch := newFakeChannel("u1", "c1")

	r.Connect("u1", ch)
	r.Connect("u1", ch)
	assert.Equal(t, 1, r.ConnectionCount("u1"))
	assert.Equal(t, 1, r.TotalConnections())
}

func TestConcurrentConnectDisconnectLeavesNoEntry(t *testing.T) {
	r := newTestRegistry()
	const n = 100

	channels := make([]*fakeChannel, n)
	for i := range channels {
		channels[i] = newFakeChannel("u1", fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch *fakeChannel) {
			defer wg.Done()
			r.Connect("u1", ch)
		}(ch)
	}
	wg.Wait()
	assert.Equal(t, n, r.ConnectionCount("u1"))

	for _, ch := range channels {
		wg.Add(2)
		go func(ch *fakeChannel) {
			defer wg.Done()
			r.Disconnect("u1", ch)
		}(ch)
		go func(ch *fakeChannel) {
			defer wg.Done()
			r.Disconnect("u1", ch)
		}(ch)
	}
	wg.Wait()

	assert.Equal(t, 0, r.ConnectionCount("u1"))
	assert.Equal(t, 0, r.TotalConnections())
	s := r.shardFor("u1")
	s.mu.RLock()
	_, present := s.users["u1"]
	s.mu.RUnlock()
	assert.False(t, present)
}

func TestSendToUnknownUserIsNoOp(t *testing.T) {
	r := newTestRegistry()
	assert.NotPanics(t, func() {
		r.SendTo("nobody", []byte("hi"))
	})
}

func TestSendToPrunesDeadChannel(t *testing.T) {
	r := newTestRegistry()
	dead := newFakeChannel("u1", "dead")
	dead.fail = errors.New("broken pipe")
	live := newFakeChannel("u1", "live")

	r.Connect("u1", dead)
	r.Connect("u1", live)

	r.SendTo("u1", []byte("hello"))

	assert.Equal(t, 1, r.ConnectionCount("u1"))
	assert.True(t, dead.isClosed())
	require.Len(t, live.received(), 1)
	assert.Equal(t, "hello", string(live.received()[0]))
}

func TestBroadcastAfterPartialDisconnect(t *testing.T) {
	r := newTestRegistry()
	a1 := newFakeChannel("A", "a1")
	a2 := newFakeChannel("A", "a2")

	r.Connect("A", a1)
	r.Connect("A", a2)
	r.Disconnect("A", a1)
	assert.Equal(t, 1, r.ConnectionCount("A"))

	r.BroadcastTo([]string{"A", "A"}, []byte("event"))

	assert.Empty(t, a1.received())
	assert.Len(t, a2.received(), 1)
}

func TestOnEmptyFiresOnLastChannel(t *testing.T) {
	r := newTestRegistry()
	var emptied []string
	r.OnEmpty(func(userID string) { emptied = append(emptied, userID) })

	c1 := newFakeChannel("u1", "c1")
	c2 := newFakeChannel("u1", "c2")
	r.Connect("u1", c1)
	r.Connect("u1", c2)

	r.Disconnect("u1", c1)
	assert.Empty(t, emptied)

	r.Disconnect("u1", c2)
	r.Disconnect("u1", c2)
	assert.Equal(t, []string{"u1"}, emptied)
}

func TestCloseAll(t *testing.T) {
	r := newTestRegistry()
	c1 := newFakeChannel("u1", "c1")
	c2 := newFakeChannel("u2", "c2")
	r.Connect("u1", c1)
	r.Connect("u2", c2)
	assert.Equal(t, 2, r.UserCount())

	r.CloseAll()

	assert.True(t, c1.isClosed())
	assert.True(t, c2.isClosed())
	assert.Equal(t, 0, r.TotalConnections())
	assert.Equal(t, 0, r.UserCount())
}
