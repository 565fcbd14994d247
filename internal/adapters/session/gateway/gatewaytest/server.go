// Package gatewaytest runs an in-process session gateway for tests.
package gatewaytest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

type Nickname struct {
	FriendID  string `json:"friend_id"`
	AccountID int64  `json:"account_id"`
	Nickname  string `json:"nickname"`
}

type frame struct {
	Type      string     `json:"type"`
	Username  string     `json:"username,omitempty"`
	Password  string     `json:"password,omitempty"`
	LoginID   uint32     `json:"login_id,omitempty"`
	FriendID  string     `json:"friend_id,omitempty"`
	Nickname  string     `json:"nickname,omitempty"`
	Result    string     `json:"result,omitempty"`
	Friends   []string   `json:"friends,omitempty"`
	Nicknames []Nickname `json:"nicknames,omitempty"`
}

// Server accepts one logon per connection. Renames are applied to its
// nickname table and acknowledged.
type Server struct {
	*httptest.Server

	Password string

	mu        sync.Mutex
	nicknames []Nickname
	logins    []uint32
	renames   []string
	conns     []*websocket.Conn
}

func NewServer(password string, nicknames []Nickname) *Server {
	s := &Server{Password: password, nicknames: append([]Nickname(nil), nicknames...)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// WebsocketURL is the ws:// address of the gateway.
func (s *Server) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *Server) Nicknames() []Nickname {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Nickname(nil), s.nicknames...)
}

func (s *Server) LoginIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.logins...)
}

// Renames lists "friend=nickname" for every rename received.
func (s *Server) Renames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.renames...)
}

// Drop closes every open connection without a close handshake.
func (s *Server) Drop() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}

		for _, out := range s.handle(in) {
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}
}

func (s *Server) handle(in frame) []frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch in.Type {
	case "logon":
		s.logins = append(s.logins, in.LoginID)
		if in.Password != s.Password {
			return []frame{{Type: "logged_on", Result: "InvalidPassword"}}
		}
		friends := make([]string, 0, len(s.nicknames))
		for _, n := range s.nicknames {
			friends = append(friends, n.FriendID)
		}
		return []frame{{Type: "logged_on", Result: "OK"}, {Type: "friends", Friends: friends}}
	case "request_nicknames":
		return []frame{{Type: "nicknames", Nicknames: append([]Nickname(nil), s.nicknames...)}}
	case "set_nickname":
		s.renames = append(s.renames, in.FriendID+"="+in.Nickname)
		for i := range s.nicknames {
			if s.nicknames[i].FriendID == in.FriendID {
				s.nicknames[i].Nickname = in.Nickname
			}
		}
		return []frame{{Type: "nickname_ack", FriendID: in.FriendID, Result: "OK"}}
	default:
		return []frame{{Type: "unsupported"}}
	}
}
