package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionsFindsOnlyAuthedUsers(t *testing.T) {
	set := NewSessions()

	anon := NewSession(nil)
	set.Add(anon)
	assert.Nil(t, set.FindByUsername("alice"))

	alice := NewSession(nil)
	alice.SetAuthed("alice")
	set.Add(alice)

	assert.Same(t, alice, set.FindByUsername("alice"))
	assert.Nil(t, set.FindByUsername("bob"))
	assert.Equal(t, 2, set.Count())

	set.Remove(alice)
	assert.Nil(t, set.FindByUsername("alice"))
	assert.Equal(t, 1, set.Count())
}

func TestSessionResetClearsEverything(t *testing.T) {
	sess := NewSession(nil)
	sess.SetAuthed("alice")
	sess.SetRoomID(3)
	sess.SetSpectateRoomID(7)

	sess.Reset()

	assert.False(t, sess.Authed())
	assert.Empty(t, sess.Username())
	assert.Zero(t, sess.RoomID())
	assert.Zero(t, sess.SpectateRoomID())
}

func TestGameRegistry(t *testing.T) {
	reg := NewGameRegistry()

	_, ok := reg.Lookup(1)
	assert.False(t, ok)

	reg.Add(1, GameEntry{Port: 15001, Token: "aaaa"})
	reg.Add(2, GameEntry{Port: 15002, Token: "bbbb"})

	entry, ok := reg.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, GameEntry{Port: 15001, Token: "aaaa"}, entry)

	reg.Remove(1)
	reg.Remove(1)
	_, ok = reg.Lookup(1)
	assert.False(t, ok)

	_, ok = reg.Lookup(2)
	assert.True(t, ok)
}
