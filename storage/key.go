package storage

import "strings"

const keySeparator = ":"

// recordKey joins the components that address one token record.
// Session IDs, base64url access keys and hex token names never contain the separator.
func recordKey(sessionID, accessKey, tokenName string) string {
	return strings.Join([]string{sessionID, accessKey, tokenName}, keySeparator)
}

func validKey(sessionID, accessKey, tokenName string) bool {
	return sessionID != "" && accessKey != "" && tokenName != ""
}
