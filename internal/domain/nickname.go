package domain

import (
	"strconv"
	"strings"
)

const (
	// NicknameMarker separates the count prefix from the rest of the name.
	NicknameMarker = "MC"
	// PrivateCount is the prefix used for friends whose stats are hidden.
	PrivateCount = "xx"

	countWidth = 2
)

type FriendID string

type FriendNickname struct {
	FriendID  FriendID  `json:"friend_id"`
	AccountID AccountID `json:"account_id"`
	Nickname  string    `json:"nickname"`
}

// ParsedNickname is a nickname that follows the "<count>MC<name>" scheme.
type ParsedNickname struct {
	Count string
	Name  string
}

// ParseNickname accepts exactly two digits or "xx", the marker, and a
// non-empty remainder. Anything else is reported as not matching.
func ParseNickname(nickname string) (ParsedNickname, bool) {
	if len(nickname) < countWidth+len(NicknameMarker)+1 {
		return ParsedNickname{}, false
	}

	count := nickname[:countWidth]
	if count != PrivateCount && !isDigits(count) {
		return ParsedNickname{}, false
	}

	rest := nickname[countWidth:]
	if !strings.HasPrefix(rest, NicknameMarker) {
		return ParsedNickname{}, false
	}

	name := rest[len(NicknameMarker):]
	if name == "" {
		return ParsedNickname{}, false
	}

	return ParsedNickname{Count: count, Name: name}, true
}

func (p ParsedNickname) WithCount(count string) string {
	return count + NicknameMarker + p.Name
}

// FormatCount zero-pads counts below 10; larger values render unchanged.
func FormatCount(n int) string {
	if n < 0 {
		n = 0
	}
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
