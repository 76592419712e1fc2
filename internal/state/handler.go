package state

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okonogi/gamehall/internal/protocol"
)

// Handler turns one request line into one reply line.
// Grammar: `<Collection> <Action> [key=value …]`; replies are `OK [payload]`
// or `ERR <kind>`. A bad request never mutates state and never costs the
// client its connection.
type Handler struct {
	store *Store
}

// NewHandler creates a handler over the given store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

const errUnknown = "ERR unknown_command"

// Handle executes one command and returns the reply.
func (h *Handler) Handle(line string) string {
	collection, rest, _ := strings.Cut(line, " ")
	action, _, _ := strings.Cut(rest, " ")
	args := protocol.ParseFields(line)

	switch collection {
	case "User":
		return h.user(action, args)
	case "Room":
		return h.room(action, args)
	case "GameLog":
		return h.gameLog(action, args)
	}
	return errUnknown
}

func (h *Handler) user(action string, args protocol.Fields) string {
	username := args["username"]

	switch action {
	case "create":
		if username == "" {
			return "ERR missing_username"
		}
		if err := h.store.CreateUser(username, args["pass"]); err != nil {
			return errReply(err)
		}
		return "OK user=" + username

	case "read":
		if username == "" {
			return "ERR missing_username"
		}
		u, err := h.store.ReadUser(username)
		if err != nil {
			return errReply(err)
		}
		return fmt.Sprintf("OK username=%s pass=%s online=%d", u.Username, u.Pass, b2i(u.Online))

	case "compareSetOnline":
		if username == "" {
			return "ERR missing_username"
		}
		expect, ok := bit(args, "expect")
		if !ok {
			return "ERR invalid_expect"
		}
		value, ok := bit(args, "value")
		if !ok {
			return "ERR invalid_value"
		}
		if err := h.store.CompareSetOnline(username, expect, value); err != nil {
			return errReply(err)
		}
		return "OK"

	case "setOnline":
		if username == "" {
			return "ERR missing_username"
		}
		online, ok := bit(args, "online")
		if !ok {
			return "ERR invalid_value"
		}
		if err := h.store.SetOnline(username, online); err != nil {
			return errReply(err)
		}
		return "OK"

	case "listOnline":
		online := h.store.ListOnline()
		if len(online) == 0 {
			return "OK"
		}
		return "OK " + strings.Join(online, ",")
	}
	return errUnknown
}

func (h *Handler) room(action string, args protocol.Fields) string {
	switch action {
	case "create":
		if args["host"] == "" {
			return "ERR missing_host"
		}
		if args["name"] == "" {
			return "ERR missing_name"
		}
		id := h.store.CreateRoom(args["name"], args["host"], args["visibility"])
		return fmt.Sprintf("OK roomId=%d", id)

	case "join":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["user"] == "" {
			return "ERR missing_user"
		}
		if err := h.store.JoinRoom(id, args["user"]); err != nil {
			return errReply(err)
		}
		return "OK"

	case "leave":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["user"] == "" {
			return "ERR missing_user"
		}
		closed, err := h.store.LeaveRoom(id, args["user"])
		if err != nil {
			return errReply(err)
		}
		if closed {
			return "OK closed"
		}
		return "OK"

	case "list":
		rooms := h.store.ListRooms()
		if len(rooms) == 0 {
			return "OK"
		}
		var sb strings.Builder
		sb.WriteString("OK ")
		for _, r := range rooms {
			fmt.Fprintf(&sb, "%d:%s:%s:%s:%s:%s:%s;", r.ID, r.Name, r.Host, r.Status, r.Visibility, r.P1, r.P2)
		}
		return sb.String()

	case "get":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		r, err := h.store.GetRoom(id)
		if err != nil {
			return errReply(err)
		}
		return fmt.Sprintf("OK id=%d name=%s host=%s status=%s p1=%s p2=%s token=%s",
			r.ID, r.Name, r.Host, r.Status, r.P1, r.P2, r.Token)

	case "setStatus":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["status"] == "" {
			return "ERR missing_status"
		}
		if err := h.store.SetRoomStatus(id, args["status"]); err != nil {
			return errReply(err)
		}
		return "OK"

	case "setToken":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["token"] == "" {
			return "ERR missing_token"
		}
		if err := h.store.SetRoomToken(id, args["token"]); err != nil {
			return errReply(err)
		}
		return "OK"

	case "invite":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["user"] == "" {
			return "ERR missing_user"
		}
		if args["host"] == "" {
			return "ERR missing_host"
		}
		if err := h.store.InviteToRoom(id, args["user"], args["host"]); err != nil {
			return errReply(err)
		}
		return "OK invited=" + args["user"]

	case "spectate":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["user"] == "" {
			return "ERR missing_user"
		}
		if err := h.store.Spectate(id, args["user"]); err != nil {
			return errReply(err)
		}
		return "OK"

	case "unspectate":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["user"] == "" {
			return "ERR missing_user"
		}
		if err := h.store.Unspectate(id, args["user"]); err != nil {
			return errReply(err)
		}
		return "OK"

	case "listInvites":
		if args["user"] == "" {
			return "ERR missing_user"
		}
		rooms := h.store.ListInvites(args["user"])
		if len(rooms) == 0 {
			return "OK"
		}
		var sb strings.Builder
		sb.WriteString("OK ")
		for _, r := range rooms {
			fmt.Fprintf(&sb, "%d:%s:%s;", r.ID, r.Name, r.Host)
		}
		return sb.String()
	}
	return errUnknown
}

func (h *Handler) gameLog(action string, args protocol.Fields) string {
	switch action {
	case "create":
		id, ok := roomID(args)
		if !ok {
			return "ERR invalid_roomId"
		}
		if args["user1"] == "" || args["user2"] == "" {
			return "ERR missing_user"
		}
		score1, err := strconv.Atoi(args["score1"])
		if err != nil {
			return "ERR invalid_score1"
		}
		score2, err := strconv.Atoi(args["score2"])
		if err != nil {
			return "ERR invalid_score2"
		}
		gameID := h.store.CreateGameLog(id, args["user1"], args["user2"], score1, score2)
		return fmt.Sprintf("OK gameId=%d", gameID)

	case "list":
		logs := h.store.GameLogs()
		if len(logs) == 0 {
			return "OK"
		}
		var sb strings.Builder
		sb.WriteString("OK ")
		for _, l := range logs {
			fmt.Fprintf(&sb, "id=%d room=%d p1=%s s1=%d p2=%s s2=%d;",
				l.ID, l.RoomID, l.User1, l.Score1, l.User2, l.Score2)
		}
		return sb.String()
	}
	return errUnknown
}

func errReply(err error) string {
	return "ERR " + err.Error()
}

// roomID extracts a positive roomId argument.
func roomID(args protocol.Fields) (int, bool) {
	id, ok := args.Int("roomId")
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// bit reads a strict 0/1 argument.
func bit(args protocol.Fields, key string) (value, ok bool) {
	switch args[key] {
	case "0":
		return false, true
	case "1":
		return true, true
	}
	return false, false
}
