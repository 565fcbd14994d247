package gateway

import "github.com/bnema/coplay/internal/domain"

const (
	frameLogOn            = "logon"
	frameRequestNicknames = "request_nicknames"
	frameSetNickname      = "set_nickname"
)

type outboundFrame struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	LoginID  uint32 `json:"login_id,omitempty"`
	FriendID string `json:"friend_id,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

type inboundFrame struct {
	Type      string          `json:"type"`
	Result    string          `json:"result,omitempty"`
	Friends   []string        `json:"friends,omitempty"`
	Nicknames []nicknameFrame `json:"nicknames,omitempty"`
	FriendID  string          `json:"friend_id,omitempty"`
}

type nicknameFrame struct {
	FriendID  string `json:"friend_id"`
	AccountID int64  `json:"account_id"`
	Nickname  string `json:"nickname"`
}

// event maps a gateway frame to a session event. Connection state is derived
// locally, so "connected" and "disconnected" frames are not accepted.
func (f inboundFrame) event() (domain.SessionEvent, bool) {
	switch kind := domain.SessionEventKind(f.Type); kind {
	case domain.EventLoggedOn, domain.EventLoggedOff:
		return domain.SessionEvent{Kind: kind, Result: f.Result}, true
	case domain.EventFriendsList:
		friends := make([]domain.FriendID, 0, len(f.Friends))
		for _, id := range f.Friends {
			friends = append(friends, domain.FriendID(id))
		}
		return domain.SessionEvent{Kind: kind, Friends: friends}, true
	case domain.EventNicknameList:
		nicknames := make([]domain.FriendNickname, 0, len(f.Nicknames))
		for _, n := range f.Nicknames {
			nicknames = append(nicknames, domain.FriendNickname{
				FriendID:  domain.FriendID(n.FriendID),
				AccountID: domain.AccountID(n.AccountID),
				Nickname:  n.Nickname,
			})
		}
		return domain.SessionEvent{Kind: kind, Nicknames: nicknames}, true
	case domain.EventNicknameAck:
		return domain.SessionEvent{Kind: kind, FriendID: domain.FriendID(f.FriendID), Result: f.Result}, true
	default:
		return domain.SessionEvent{}, false
	}
}
