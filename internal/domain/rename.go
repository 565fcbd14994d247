package domain

// Rename is one nickname change computed from fresh co-play counts.
type Rename struct {
	FriendID    FriendID  `json:"friend_id"`
	AccountID   AccountID `json:"account_id"`
	OldNickname string    `json:"old_nickname"`
	NewNickname string    `json:"new_nickname"`
	OldCount    string    `json:"old_count"`
	NewCount    string    `json:"new_count"`
}
