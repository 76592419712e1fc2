package state

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/okonogi/gamehall/internal/model"
)

// The snapshot is a line-oriented text file: one record per line, tagged
// USER/ROOM/LOG, string fields quoted so whitespace round-trips, set fields
// count-prefixed. Blank lines and #-comments are skipped. It is written on
// clean shutdown only; there is no checkpointing while serving.

// Save writes the snapshot to w.
// Records are sorted so identical state produces identical bytes.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# gamehall state snapshot")

	usernames := make([]string, 0, len(s.users))
	for name := range s.users {
		usernames = append(usernames, name)
	}
	sort.Strings(usernames)
	for _, name := range usernames {
		u := s.users[name]
		fmt.Fprintf(bw, "USER %s %s %d\n", strconv.Quote(u.Username), strconv.Quote(u.Pass), b2i(u.Online))
	}

	roomIDs := make([]int, 0, len(s.rooms))
	for id := range s.rooms {
		roomIDs = append(roomIDs, id)
	}
	sort.Ints(roomIDs)
	for _, id := range roomIDs {
		r := s.rooms[id]
		fmt.Fprintf(bw, "ROOM %d %s %s %s %s %s %s %s",
			r.ID, strconv.Quote(r.Name), strconv.Quote(r.Host),
			strconv.Quote(r.Visibility), strconv.Quote(r.Status),
			strconv.Quote(r.P1), strconv.Quote(r.P2), strconv.Quote(r.Token))
		writeSet(bw, r.Invites)
		writeSet(bw, r.Spectators)
		fmt.Fprintln(bw)
	}

	for _, l := range s.logs {
		fmt.Fprintf(bw, "LOG %d %d %s %s %d %d\n",
			l.ID, l.RoomID, strconv.Quote(l.User1), strconv.Quote(l.User2), l.Score1, l.Score2)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func writeSet(w io.Writer, set map[string]struct{}) {
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)

	fmt.Fprintf(w, " %d", len(members))
	for _, m := range members {
		fmt.Fprintf(w, " %s", strconv.Quote(m))
	}
}

// Load replaces the store's contents with the snapshot read from r.
// Every loaded user is forced offline: presence never survives a restart.
// On any parse error the store is left unchanged.
func (s *Store) Load(r io.Reader) error {
	users := make(map[string]*model.User)
	rooms := make(map[int]*model.Room)
	var logs []model.GameLog

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		toks, err := splitFields(line)
		if err != nil {
			return fmt.Errorf("snapshot line %d: %w", lineNo, err)
		}

		rec := record{toks: toks[1:]}
		switch toks[0] {
		case "USER":
			u, err := readUserRecord(&rec)
			if err != nil {
				return fmt.Errorf("snapshot line %d: %w", lineNo, err)
			}
			users[u.Username] = u
		case "ROOM":
			room, err := readRoomRecord(&rec)
			if err != nil {
				return fmt.Errorf("snapshot line %d: %w", lineNo, err)
			}
			rooms[room.ID] = room
		case "LOG":
			l, err := readLogRecord(&rec)
			if err != nil {
				return fmt.Errorf("snapshot line %d: %w", lineNo, err)
			}
			logs = append(logs, l)
		default:
			return fmt.Errorf("snapshot line %d: unknown record %q", lineNo, toks[0])
		}
		if rec.pos != len(rec.toks) {
			return fmt.Errorf("snapshot line %d: %d trailing fields", lineNo, len(rec.toks)-rec.pos)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = users
	s.rooms = rooms
	s.logs = logs
	s.nextRoomID = 1
	for id := range rooms {
		if id >= s.nextRoomID {
			s.nextRoomID = id + 1
		}
	}
	s.nextLogID = 1
	for _, l := range logs {
		if l.ID >= s.nextLogID {
			s.nextLogID = l.ID + 1
		}
	}
	return nil
}

// SaveFile writes the snapshot to path.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot %s: %w", path, err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot %s: %w", path, err)
	}
	return nil
}

// LoadFile loads the snapshot at path. A missing file is a fresh start,
// not an error.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()
	return s.Load(f)
}

func readUserRecord(rec *record) (*model.User, error) {
	username, err := rec.nextStr()
	if err != nil {
		return nil, err
	}
	pass, err := rec.nextStr()
	if err != nil {
		return nil, err
	}
	// Presence is part of the record but deliberately dropped on load.
	if _, err := rec.nextInt(); err != nil {
		return nil, err
	}
	return &model.User{Username: username, Pass: pass}, nil
}

func readRoomRecord(rec *record) (*model.Room, error) {
	id, err := rec.nextInt()
	if err != nil {
		return nil, err
	}

	var strs [7]string
	for i := range strs {
		if strs[i], err = rec.nextStr(); err != nil {
			return nil, err
		}
	}

	invites, err := rec.nextSet()
	if err != nil {
		return nil, err
	}
	spectators, err := rec.nextSet()
	if err != nil {
		return nil, err
	}

	return &model.Room{
		ID:         id,
		Name:       strs[0],
		Host:       strs[1],
		Visibility: strs[2],
		Status:     strs[3],
		P1:         strs[4],
		P2:         strs[5],
		Token:      strs[6],
		Invites:    invites,
		Spectators: spectators,
	}, nil
}

func readLogRecord(rec *record) (model.GameLog, error) {
	var l model.GameLog
	var err error
	if l.ID, err = rec.nextInt(); err != nil {
		return l, err
	}
	if l.RoomID, err = rec.nextInt(); err != nil {
		return l, err
	}
	if l.User1, err = rec.nextStr(); err != nil {
		return l, err
	}
	if l.User2, err = rec.nextStr(); err != nil {
		return l, err
	}
	if l.Score1, err = rec.nextInt(); err != nil {
		return l, err
	}
	if l.Score2, err = rec.nextInt(); err != nil {
		return l, err
	}
	return l, nil
}

// record is a cursor over one line's parsed fields.
type record struct {
	toks []string
	pos  int
}

func (r *record) next() (string, error) {
	if r.pos >= len(r.toks) {
		return "", fmt.Errorf("record truncated at field %d", r.pos)
	}
	tok := r.toks[r.pos]
	r.pos++
	return tok, nil
}

func (r *record) nextStr() (string, error) {
	return r.next()
}

func (r *record) nextInt() (int, error) {
	tok, err := r.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("field %d: %q is not a number", r.pos-1, tok)
	}
	return n, nil
}

func (r *record) nextSet() (map[string]struct{}, error) {
	n, err := r.nextInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("field %d: negative set size %d", r.pos-1, n)
	}
	set := make(map[string]struct{}, n)
	for range n {
		m, err := r.nextStr()
		if err != nil {
			return nil, err
		}
		set[m] = struct{}{}
	}
	return set, nil
}

// splitFields splits a record line into tokens, unquoting quoted fields.
func splitFields(line string) ([]string, error) {
	var out []string
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}

		if line[i] == '"' {
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated quote at column %d", i+1)
			}
			tok, err := strconv.Unquote(line[i : j+1])
			if err != nil {
				return nil, fmt.Errorf("bad quoted field at column %d: %w", i+1, err)
			}
			out = append(out, tok)
			i = j + 1
		} else {
			j := i
			for j < len(line) && line[j] != ' ' {
				j++
			}
			out = append(out, line[i:j])
			i = j
		}
	}
	return out, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
