package state

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonogi/gamehall/internal/model"
)

func populatedStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore()
	require.NoError(t, s.CreateUser("alice", "pw one")) // space round-trips
	require.NoError(t, s.CreateUser("bob", `pw"quoted`))
	require.NoError(t, s.SetOnline("alice", true))

	id := s.CreateRoom("war room", "alice", "private")
	require.NoError(t, s.InviteToRoom(id, "bob", "alice"))
	require.NoError(t, s.JoinRoom(id, "bob"))
	require.NoError(t, s.InviteToRoom(id, "carol", "alice"))
	require.NoError(t, s.SetRoomToken(id, "00c0ffee11223344"))
	require.NoError(t, s.SetRoomStatus(id, model.StatusPlaying))
	require.NoError(t, s.Spectate(id, "dave"))
	require.NoError(t, s.Spectate(id, "eve"))

	s.CreateRoom("open", "bob", "public")
	s.CreateGameLog(1, "alice", "bob", 800, 0)

	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := populatedStore(t)

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	dst := NewStore()
	require.NoError(t, dst.Load(bytes.NewReader(buf.Bytes())))

	alice, err := dst.ReadUser("alice")
	require.NoError(t, err)
	assert.Equal(t, "pw one", alice.Pass)
	assert.False(t, alice.Online, "presence must not survive a reload")

	bob, err := dst.ReadUser("bob")
	require.NoError(t, err)
	assert.Equal(t, `pw"quoted`, bob.Pass)

	r, err := dst.GetRoom(1)
	require.NoError(t, err)
	assert.Equal(t, "war room", r.Name)
	assert.Equal(t, "alice", r.Host)
	assert.Equal(t, model.VisibilityPrivate, r.Visibility)
	assert.Equal(t, model.StatusPlaying, r.Status)
	assert.Equal(t, "alice", r.P1)
	assert.Equal(t, "bob", r.P2)
	assert.Equal(t, "00c0ffee11223344", r.Token)
	assert.Equal(t, map[string]struct{}{"carol": {}}, r.Invites)
	assert.Equal(t, map[string]struct{}{"dave": {}, "eve": {}}, r.Spectators)

	logs := dst.GameLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.GameLog{ID: 1, RoomID: 1, User1: "alice", User2: "bob", Score1: 800, Score2: 0}, logs[0])

	// Fresh ids continue past the loaded ones.
	assert.Equal(t, 3, dst.CreateRoom("next", "carol", "public"))
	assert.Equal(t, 2, dst.CreateGameLog(2, "x", "y", 0, 0))
}

func TestSnapshotDeterministic(t *testing.T) {
	s := populatedStore(t)

	var a, b bytes.Buffer
	require.NoError(t, s.Save(&a))
	require.NoError(t, s.Save(&b))
	assert.Equal(t, a.String(), b.String())
}

func TestLoadSkipsCommentsAndBlankLines(t *testing.T) {
	in := strings.Join([]string{
		"# header",
		"",
		`USER "alice" "pw1" 1`,
		"   ",
		"# trailing",
	}, "\n")

	s := NewStore()
	require.NoError(t, s.Load(strings.NewReader(in)))

	u, err := s.ReadUser("alice")
	require.NoError(t, err)
	assert.False(t, u.Online)
}

func TestLoadRejectsMalformedLines(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "unknown tag", in: `BANANA "x"`},
		{name: "truncated user", in: `USER "alice"`},
		{name: "unterminated quote", in: `USER "alice`},
		{name: "bad number", in: `USER "alice" "pw" nope`},
		{name: "bad set count", in: `ROOM 1 "r" "a" "public" "idle" "a" "" "" 2 "only" 0`},
		{name: "trailing fields", in: `LOG 1 1 "a" "b" 1 2 3`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			require.NoError(t, s.CreateUser("keep", "me"))

			err := s.Load(strings.NewReader(tc.in))
			require.Error(t, err)

			// A failed load leaves the store untouched.
			_, err = s.ReadUser("keep")
			assert.NoError(t, err)
		})
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")

	src := populatedStore(t)
	require.NoError(t, src.SaveFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#"))

	dst := NewStore()
	require.NoError(t, dst.LoadFile(path))
	_, err = dst.GetRoom(1)
	assert.NoError(t, err)
}

func TestLoadFileMissingIsFreshStart(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.LoadFile(filepath.Join(t.TempDir(), "absent.txt")))
	assert.Empty(t, s.ListOnline())
	assert.Equal(t, 1, s.CreateRoom("first", "alice", "public"))
}
