package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type counter struct {
	mu    sync.Mutex
	calls []string
}

func (c *counter) record(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func TestFanout_NoSubscribers(t *testing.T) {
	f := NewFanout[*counter](nil)
	assert.NotPanics(t, func() {
		f.Notify("noop", func(c *counter) { c.record("x") })
	})
	assert.Equal(t, 0, f.Len())
}

func TestFanout_DeliversToAll(t *testing.T) {
	f := NewFanout[*counter](nil)
	a, b := &counter{}, &counter{}
	f.Subscribe(a)
	f.Subscribe(b)

	f.Notify("ev", func(c *counter) { c.record("ev") })

	assert.Equal(t, []string{"ev"}, a.calls)
	assert.Equal(t, []string{"ev"}, b.calls)
}

func TestFanout_Unsubscribe(t *testing.T) {
	f := NewFanout[*counter](nil)
	a := &counter{}
	unsubscribe := f.Subscribe(a)

	unsubscribe()
	unsubscribe()

	f.Notify("ev", func(c *counter) { c.record("ev") })
	assert.Empty(t, a.calls)
	assert.Equal(t, 0, f.Len())
}

func TestFanout_PanicIsolated(t *testing.T) {
	f := NewFanout[*counter](nil)
	bad, good := &counter{}, &counter{}
	f.Subscribe(bad)
	f.Subscribe(good)

	assert.NotPanics(t, func() {
		f.Notify("ev", func(c *counter) {
			if c == bad {
				panic("observer failure")
			}
			c.record("ev")
		})
	})
	assert.Equal(t, []string{"ev"}, good.calls)
}

func TestFanout_UnsubscribeInsideHandler(t *testing.T) {
	f := NewFanout[*counter](nil)
	a := &counter{}
	var unsubscribe func()
	unsubscribe = f.Subscribe(a)

	f.Notify("ev", func(c *counter) {
		c.record("ev")
		unsubscribe()
	})
	f.Notify("ev", func(c *counter) { c.record("ev") })

	assert.Equal(t, []string{"ev"}, a.calls)
}
