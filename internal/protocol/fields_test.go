package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFields(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Fields
	}{
		{name: "empty", in: "", want: Fields{}},
		{name: "single", in: "username=alice", want: Fields{"username": "alice"}},
		{
			name: "several",
			in:   "roomId=3 user=bob host=alice",
			want: Fields{"roomId": "3", "user": "bob", "host": "alice"},
		},
		{
			name: "bare tokens skipped",
			in:   "Room join roomId=3 user=bob",
			want: Fields{"roomId": "3", "user": "bob"},
		},
		{name: "empty value kept", in: "token=", want: Fields{"token": ""}},
		{name: "duplicate keeps last", in: "user=a user=b", want: Fields{"user": "b"}},
		{name: "equals in value", in: "pass=a=b", want: Fields{"pass": "a=b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFields(tt.in))
		})
	}
}

func TestFieldsInt(t *testing.T) {
	f := ParseFields("roomId=12 score=-3 bad=x7")

	n, ok := f.Int("roomId")
	require.True(t, ok)
	assert.Equal(t, 12, n)

	n, ok = f.Int("score")
	require.True(t, ok)
	assert.Equal(t, -3, n)

	_, ok = f.Int("bad")
	assert.False(t, ok)

	_, ok = f.Int("absent")
	assert.False(t, ok)
}

func TestIsOK(t *testing.T) {
	assert.True(t, IsOK("OK"))
	assert.True(t, IsOK("OK roomId=1"))
	assert.False(t, IsOK("OKAY"))
	assert.False(t, IsOK("ERR db"))
	assert.False(t, IsOK(""))
}

func TestOKFields(t *testing.T) {
	f, ok := OKFields("OK port=15000 token=deadbeef")
	require.True(t, ok)
	assert.Equal(t, "15000", f["port"])
	assert.Equal(t, "deadbeef", f["token"])

	f, ok = OKFields("ERR not_found")
	assert.False(t, ok)
	assert.Nil(t, f)

	f, ok = OKFields("OK")
	require.True(t, ok)
	assert.Empty(t, f)
}

func TestErrKind(t *testing.T) {
	assert.Equal(t, "mismatch", ErrKind("ERR mismatch"))
	assert.Equal(t, "not_found", ErrKind("ERR not_found extra"))
	assert.Equal(t, "", ErrKind("OK"))
	assert.Equal(t, "", ErrKind("ERRmismatch"))
}
