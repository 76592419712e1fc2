package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/okonogi/gamehall/internal/match"
	"github.com/okonogi/gamehall/internal/model"
	"github.com/okonogi/gamehall/internal/protocol"
)

// handleCommand dispatches one client frame. Only REGISTER and LOGIN are
// open to unauthenticated sessions.
func (s *Server) handleCommand(ctx context.Context, sess *Session, line string) {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "REGISTER":
		s.register(ctx, sess, rest)
		return
	case "LOGIN":
		s.login(ctx, sess, rest)
		return
	}

	if !sess.Authed() {
		s.reply(sess, "ERR not_logged_in")
		return
	}

	switch cmd {
	case "LOGOUT":
		s.logout(sess)
	case "LIST_ONLINE":
		s.forward(ctx, sess, "User listOnline")
	case "LIST_ROOMS":
		s.forward(ctx, sess, "Room list")
	case "LIST_INVITES":
		s.forward(ctx, sess, "Room listInvites user="+sess.Username())
	case "CREATE_ROOM":
		s.createRoom(ctx, sess, rest)
	case "JOIN_ROOM":
		s.joinRoom(ctx, sess, rest)
	case "LEAVE_ROOM":
		s.leaveRoom(ctx, sess)
	case "INVITE":
		s.invite(ctx, sess, rest)
	case "SPECTATE":
		s.spectate(ctx, sess, rest)
	case "UNSPECTATE":
		s.unspectate(ctx, sess)
	case "START_GAME":
		s.startGame(ctx, sess)
	default:
		s.reply(sess, "ERR unknown_command")
	}
}

func (s *Server) reply(sess *Session, msg string) {
	if err := sess.Send(msg); err != nil {
		slog.Debug("writing reply", "remote", sess.RemoteAddr(), "err", err)
	}
}

// forward runs one state service command and relays its reply verbatim.
func (s *Server) forward(ctx context.Context, sess *Session, cmd string) {
	reply, _ := s.request(ctx, cmd)
	s.reply(sess, reply)
}

func (s *Server) register(ctx context.Context, sess *Session, rest string) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		s.reply(sess, "ERR bad_credentials")
		return
	}
	s.forward(ctx, sess, fmt.Sprintf("User create username=%s pass=%s", fields[0], fields[1]))
}

// login runs the three-step protocol: credential check, presence check,
// and the compare-and-set that is the real guard against double logins.
func (s *Server) login(ctx context.Context, sess *Session, rest string) {
	if sess.Authed() {
		s.reply(sess, "ERR already_online")
		return
	}
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		s.reply(sess, "ERR bad_credentials")
		return
	}
	username, pass := fields[0], fields[1]

	reply, ok := s.request(ctx, "User read username="+username)
	if !ok {
		s.reply(sess, reply)
		return
	}
	if protocol.ErrKind(reply) != "" {
		s.reply(sess, "ERR bad_credentials")
		return
	}
	user, _ := protocol.OKFields(reply)
	if user["pass"] != pass {
		s.reply(sess, "ERR bad_credentials")
		return
	}

	// Fast paths only. Two logins can still pass both checks at once; the
	// CAS below decides the winner.
	if user["online"] == "1" || s.sessions.FindByUsername(username) != nil {
		s.reply(sess, "ERR already_online")
		return
	}

	reply, ok = s.request(ctx, fmt.Sprintf("User compareSetOnline username=%s expect=0 value=1", username))
	if !ok {
		s.reply(sess, reply)
		return
	}
	switch protocol.ErrKind(reply) {
	case "":
	case "mismatch":
		s.reply(sess, "ERR already_online")
		return
	default:
		s.reply(sess, "ERR db")
		return
	}

	sess.SetAuthed(username)
	slog.Info("user logged in", "user", username, "remote", sess.RemoteAddr())
	s.reply(sess, "OK LOGIN")
}

// logout releases everything the session holds. The client always gets
// OK LOGOUT; reconciliation failures are the lobby's problem, not theirs.
func (s *Server) logout(sess *Session) {
	s.release(sess)
	s.reply(sess, "OK LOGOUT")
}

func (s *Server) createRoom(ctx context.Context, sess *Session, rest string) {
	if sess.RoomID() != 0 || sess.SpectateRoomID() != 0 {
		s.reply(sess, "ERR must_leave_room")
		return
	}
	fields := strings.Fields(rest)
	if len(fields) < 1 || len(fields) > 2 {
		s.reply(sess, "ERR create_failed")
		return
	}
	visibility := model.VisibilityPublic
	if len(fields) == 2 {
		visibility = fields[1]
	}

	reply, ok := s.request(ctx, fmt.Sprintf("Room create name=%s host=%s visibility=%s",
		fields[0], sess.Username(), visibility))
	if !ok || protocol.ErrKind(reply) != "" {
		s.reply(sess, reply)
		return
	}
	f, _ := protocol.OKFields(reply)
	id, idOK := f.Int("roomId")
	if !idOK {
		s.reply(sess, "ERR create_failed")
		return
	}
	sess.SetRoomID(id)
	s.reply(sess, reply)
}

func (s *Server) joinRoom(ctx context.Context, sess *Session, rest string) {
	id, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || id <= 0 {
		s.reply(sess, "ERR invalid_room")
		return
	}
	if sess.RoomID() != 0 || sess.SpectateRoomID() != 0 {
		s.reply(sess, "ERR must_leave_room")
		return
	}

	reply, ok := s.request(ctx, fmt.Sprintf("Room join roomId=%d user=%s", id, sess.Username()))
	if !ok || protocol.ErrKind(reply) != "" {
		s.reply(sess, reply)
		return
	}
	sess.SetRoomID(id)
	s.reply(sess, "OK joined")
}

func (s *Server) leaveRoom(ctx context.Context, sess *Session) {
	id := sess.RoomID()
	if id == 0 {
		s.reply(sess, "ERR not_in_room")
		return
	}

	reply, ok := s.request(ctx, fmt.Sprintf("Room leave roomId=%d user=%s", id, sess.Username()))
	if !ok {
		s.reply(sess, reply)
		return
	}
	switch protocol.ErrKind(reply) {
	case "", "not_found", "not_in_room":
		// Either we left, or the state service says we hold no seat there
		// anymore. Both mean the mirror is stale.
		sess.SetRoomID(0)
	}
	s.reply(sess, reply)
}

func (s *Server) invite(ctx context.Context, sess *Session, rest string) {
	roomID := sess.RoomID()
	if roomID == 0 {
		s.reply(sess, "ERR not_in_room")
		return
	}
	target := strings.TrimSpace(rest)

	reply, ok := s.request(ctx, fmt.Sprintf("Room invite roomId=%d user=%s host=%s",
		roomID, target, sess.Username()))
	s.reply(sess, reply)
	if !ok || protocol.ErrKind(reply) != "" {
		return
	}
	s.pushInvite(ctx, roomID, target)
}

// pushInvite notifies a live invitee. Best effort: if they are offline or
// the room vanished meanwhile, nobody hears anything.
func (s *Server) pushInvite(ctx context.Context, roomID int, target string) {
	invitee := s.sessions.FindByUsername(target)
	if invitee == nil {
		return
	}
	reply, ok := s.request(ctx, fmt.Sprintf("Room get roomId=%d", roomID))
	if !ok || protocol.ErrKind(reply) != "" {
		return
	}
	f, _ := protocol.OKFields(reply)
	msg := fmt.Sprintf("ROOM_INVITE roomId=%d name=%s host=%s", roomID, f["name"], f["host"])
	if err := invitee.Send(msg); err != nil {
		slog.Debug("pushing invite", "user", target, "err", err)
	}
}

func (s *Server) spectate(ctx context.Context, sess *Session, rest string) {
	id, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || id <= 0 {
		s.reply(sess, "ERR invalid_room")
		return
	}
	if sess.RoomID() != 0 {
		s.reply(sess, "ERR must_leave_room")
		return
	}
	if sess.SpectateRoomID() != 0 {
		s.reply(sess, "ERR already_spectating")
		return
	}

	reply, ok := s.request(ctx, fmt.Sprintf("Room spectate roomId=%d user=%s", id, sess.Username()))
	if !ok {
		s.reply(sess, reply)
		return
	}
	switch protocol.ErrKind(reply) {
	case "":
	case "not_playing":
		s.reply(sess, "ERR no_active_game")
		return
	default:
		s.reply(sess, reply)
		return
	}

	entry, live := s.games.Lookup(id)
	if !live {
		// The room says playing but no runtime is registered here; undo
		// the membership we just took.
		s.request(ctx, fmt.Sprintf("Room unspectate roomId=%d user=%s", id, sess.Username()))
		s.reply(sess, "ERR no_active_game")
		return
	}

	sess.SetSpectateRoomID(id)
	s.reply(sess, "OK SPECTATE")
	s.reply(sess, fmt.Sprintf("SPECTATE_READY port=%d token=%s role=SPEC", entry.Port, entry.Token))
}

func (s *Server) unspectate(ctx context.Context, sess *Session) {
	id := sess.SpectateRoomID()
	if id == 0 {
		s.reply(sess, "ERR not_spectating")
		return
	}

	reply, ok := s.request(ctx, fmt.Sprintf("Room unspectate roomId=%d user=%s", id, sess.Username()))
	if !ok {
		s.reply(sess, reply)
		return
	}
	switch protocol.ErrKind(reply) {
	case "":
		sess.SetSpectateRoomID(0)
		s.reply(sess, "OK UNSPECTATE")
	case "not_spectating", "not_found":
		sess.SetSpectateRoomID(0)
		s.reply(sess, reply)
	default:
		s.reply(sess, reply)
	}
}

// startGame checks the room against a fresh Room get, allocates the match
// endpoint, flips the room to playing, and only then tells anyone.
func (s *Server) startGame(ctx context.Context, sess *Session) {
	roomID := sess.RoomID()
	if roomID == 0 {
		s.reply(sess, "ERR not_in_room")
		return
	}

	reply, ok := s.request(ctx, fmt.Sprintf("Room get roomId=%d", roomID))
	if !ok {
		s.reply(sess, reply)
		return
	}
	switch protocol.ErrKind(reply) {
	case "":
	case "not_found":
		s.reply(sess, "ERR no_such_room")
		return
	default:
		s.reply(sess, reply)
		return
	}
	room, _ := protocol.OKFields(reply)
	switch {
	case room["host"] != sess.Username():
		s.reply(sess, "ERR not_host")
		return
	case room["p1"] == "" || room["p2"] == "":
		s.reply(sess, "ERR need_2_players")
		return
	case room["status"] == model.StatusPlaying:
		s.reply(sess, "ERR already_playing")
		return
	}

	ln, port, err := s.ports.Listen(s.cfg.BindAddress)
	if err != nil {
		slog.Error("allocating match port", "room", roomID, "err", err)
		s.reply(sess, "ERR cannot_start_game_port")
		return
	}

	token, err := NewToken()
	if err != nil {
		ln.Close()
		slog.Error("generating match token", "room", roomID, "err", err)
		s.reply(sess, "ERR db")
		return
	}

	if reply, ok := s.request(ctx, fmt.Sprintf("Room setStatus roomId=%d status=playing", roomID)); !ok || protocol.ErrKind(reply) != "" {
		ln.Close()
		s.reply(sess, reply)
		return
	}
	if reply, ok := s.request(ctx, fmt.Sprintf("Room setToken roomId=%d token=%s", roomID, token)); !ok || protocol.ErrKind(reply) != "" {
		ln.Close()
		s.request(ctx, fmt.Sprintf("Room setStatus roomId=%d status=idle", roomID))
		s.reply(sess, reply)
		return
	}

	s.games.Add(roomID, GameEntry{Port: port, Token: token})
	s.reply(sess, "OK GAME_STARTING")

	ready := fmt.Sprintf("GAME_READY port=%d token=%s", port, token)
	for _, name := range []string{room["p1"], room["p2"]} {
		if player := s.sessions.FindByUsername(name); player != nil {
			if err := player.Send(ready); err != nil {
				slog.Debug("pushing game ready", "user", name, "err", err)
			}
		}
	}

	s.launchMatch(ctx, ln, roomID, room["p1"], room["p2"], token)
}

func (s *Server) launchMatch(ctx context.Context, ln net.Listener, roomID int, p1, p2, token string) {
	runtime := match.NewServer(match.Config{
		RoomID:       roomID,
		Player1:      p1,
		Player2:      p2,
		Token:        token,
		TickInterval: s.cfg.Tick(),
		NewEngine:    s.newEngine,
		OnFinish:     s.matchFinished,
	})
	slog.Info("match runtime spawned", "room", roomID, "address", ln.Addr(), "p1", p1, "p2", p2)
	s.wg.Go(func() {
		if err := runtime.Serve(ctx, ln); err != nil {
			slog.Error("match runtime failed", "room", roomID, "err", err)
		}
		s.games.Remove(roomID)
	})
}

// matchFinished is the completion callback for lobby-started matches:
// write the log, idle the room, drop the registry entry.
func (s *Server) matchFinished(res match.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	cmd := fmt.Sprintf("GameLog create roomId=%d user1=%s score1=%d user2=%s score2=%d",
		res.RoomID, res.Player1, res.Score1, res.Player2, res.Score2)
	if reply, ok := s.request(ctx, cmd); ok {
		if kind := protocol.ErrKind(reply); kind != "" {
			slog.Error("recording game log", "room", res.RoomID, "kind", kind)
		}
	}
	if reply, ok := s.request(ctx, fmt.Sprintf("Room setStatus roomId=%d status=idle", res.RoomID)); ok {
		if kind := protocol.ErrKind(reply); kind != "" {
			slog.Error("resetting room after match", "room", res.RoomID, "kind", kind)
		}
	}
	s.games.Remove(res.RoomID)
	slog.Info("match result recorded", "room", res.RoomID,
		"p1", res.Player1, "p1_score", res.Score1,
		"p2", res.Player2, "p2_score", res.Score2)
}
