package db

import (
	"context"
	"fmt"

	"github.com/okonogi/gamehall/internal/model"
	"github.com/okonogi/gamehall/internal/protocol"
)

// RoomInfo is the parsed reply of `Room get`. It carries the seat and round
// fields only; invite and spectator sets never cross the wire.
type RoomInfo struct {
	ID     int
	Name   string
	Host   string
	Status string
	P1     string
	P2     string
	Token  string
}

// CreateUser registers a new user record.
func (c *Client) CreateUser(ctx context.Context, username, pass string) error {
	_, err := c.exec(ctx, fmt.Sprintf("User create username=%s pass=%s", username, pass))
	return err
}

// ReadUser fetches a user record.
func (c *Client) ReadUser(ctx context.Context, username string) (model.User, error) {
	reply, err := c.exec(ctx, "User read username="+username)
	if err != nil {
		return model.User{}, err
	}
	f, _ := protocol.OKFields(reply)
	return model.User{
		Username: f["username"],
		Pass:     f["pass"],
		Online:   f["online"] == "1",
	}, nil
}

// CompareSetOnline flips a user's presence bit only if it currently holds
// expect. ERR mismatch reports a lost race.
func (c *Client) CompareSetOnline(ctx context.Context, username string, expect, value bool) error {
	cmd := fmt.Sprintf("User compareSetOnline username=%s expect=%s value=%s",
		username, bit(expect), bit(value))
	_, err := c.exec(ctx, cmd)
	return err
}

// SetOnline overwrites a user's presence bit unconditionally.
func (c *Client) SetOnline(ctx context.Context, username string, online bool) error {
	_, err := c.exec(ctx, fmt.Sprintf("User setOnline username=%s online=%s", username, bit(online)))
	return err
}

// LeaveRoom removes the user from the room. closed reports that the room
// was deleted because its last seated player left.
func (c *Client) LeaveRoom(ctx context.Context, roomID int, username string) (closed bool, err error) {
	reply, err := c.exec(ctx, fmt.Sprintf("Room leave roomId=%d user=%s", roomID, username))
	if err != nil {
		return false, err
	}
	return reply == "OK closed", nil
}

// Unspectate removes the user from the room's spectator set.
func (c *Client) Unspectate(ctx context.Context, roomID int, username string) error {
	_, err := c.exec(ctx, fmt.Sprintf("Room unspectate roomId=%d user=%s", roomID, username))
	return err
}

// GetRoom fetches one room's seat and round fields.
func (c *Client) GetRoom(ctx context.Context, roomID int) (RoomInfo, error) {
	reply, err := c.exec(ctx, fmt.Sprintf("Room get roomId=%d", roomID))
	if err != nil {
		return RoomInfo{}, err
	}
	f, _ := protocol.OKFields(reply)
	id, ok := f.Int("id")
	if !ok {
		return RoomInfo{}, fmt.Errorf("malformed Room get reply: %q", reply)
	}
	return RoomInfo{
		ID:     id,
		Name:   f["name"],
		Host:   f["host"],
		Status: f["status"],
		P1:     f["p1"],
		P2:     f["p2"],
		Token:  f["token"],
	}, nil
}

// SetRoomStatus updates a room's lifecycle status. Setting idle also clears
// the room's token, invites and spectators on the state side.
func (c *Client) SetRoomStatus(ctx context.Context, roomID int, status string) error {
	_, err := c.exec(ctx, fmt.Sprintf("Room setStatus roomId=%d status=%s", roomID, status))
	return err
}

// SetRoomToken stores the admission token for a starting match.
func (c *Client) SetRoomToken(ctx context.Context, roomID int, token string) error {
	_, err := c.exec(ctx, fmt.Sprintf("Room setToken roomId=%d token=%s", roomID, token))
	return err
}

// Spectate adds the user to a playing room's spectator set.
func (c *Client) Spectate(ctx context.Context, roomID int, username string) error {
	_, err := c.exec(ctx, fmt.Sprintf("Room spectate roomId=%d user=%s", roomID, username))
	return err
}

// CreateGameLog records a finished match and returns its log id.
func (c *Client) CreateGameLog(ctx context.Context, roomID int, user1 string, score1 int, user2 string, score2 int) (int, error) {
	cmd := fmt.Sprintf("GameLog create roomId=%d user1=%s score1=%d user2=%s score2=%d",
		roomID, user1, score1, user2, score2)
	reply, err := c.exec(ctx, cmd)
	if err != nil {
		return 0, err
	}
	f, _ := protocol.OKFields(reply)
	id, ok := f.Int("gameId")
	if !ok {
		return 0, fmt.Errorf("malformed GameLog create reply: %q", reply)
	}
	return id, nil
}

func bit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
