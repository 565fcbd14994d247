package domain

type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnected
	SessionLoggedOn
	SessionLoggedOff
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnected:
		return "connected"
	case SessionLoggedOn:
		return "logged_on"
	case SessionLoggedOff:
		return "logged_off"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type SessionEventKind string

const (
	EventConnected    SessionEventKind = "connected"
	EventDisconnected SessionEventKind = "disconnected"
	EventLoggedOn     SessionEventKind = "logged_on"
	EventLoggedOff    SessionEventKind = "logged_off"
	EventFriendsList  SessionEventKind = "friends"
	EventNicknameList SessionEventKind = "nicknames"
	EventNicknameAck  SessionEventKind = "nickname_ack"
)

// ResultOK is the result code of a successful logon or rename.
const ResultOK = "OK"

// SessionEvent is one notification from the social network. Only the fields
// relevant to Kind are set.
type SessionEvent struct {
	Kind      SessionEventKind
	Result    string
	Friends   []FriendID
	Nicknames []FriendNickname
	FriendID  FriendID
}

type Credentials struct {
	Username string
	Password string
	LoginID  uint32
}

// DefaultLoginID identifies this client to the social network.
const DefaultLoginID = 149
