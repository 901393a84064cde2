package api

import (
	"net/http"
	"strings"
)

// SessionFatalPhrases are the lowercase fragments the backend uses in 401
// messages when it has ended the session. This list is a contract with the
// server's wording; a 401 without one of them is an ordinary permission error.
var SessionFatalPhrases = []string{
	"inactive session",
	"invalid token",
	"token expired",
	"unauthorized",
}

// Classification is the verdict on a failed response.
type Classification struct {
	// Retryable means the caller may retry the identical call.
	Retryable bool
	// SessionFatal means the session is over unless a refresh revives it.
	SessionFatal bool
}

// Classify inspects a failure's status and message. Status 0 stands for a
// failure without a response (timeout, transport).
func Classify(status int, message string) Classification {
	var c Classification
	switch status {
	case 0, http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		c.Retryable = true
	case http.StatusUnauthorized:
		lower := strings.ToLower(message)
		for _, phrase := range SessionFatalPhrases {
			if strings.Contains(lower, phrase) {
				c.SessionFatal = true
				break
			}
		}
	}
	return c
}
