package domain

import "strings"

const secretPrefix = "coplay"

// SessionPasswordKey is where the password of a session account is stored.
func SessionPasswordKey(username string) string {
	return secretPrefix + "/session/" + strings.ToLower(strings.TrimSpace(username)) + "/password"
}

func HistoryAPIKeyKey() string {
	return secretPrefix + "/history/api_key"
}
