package wire

import (
	"fmt"
	"net/url"
	"strings"
)

// Close codes used on the realtime channel.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseAbnormal        = 1006
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011

	// CloseUnauthorized is sent when the channel token is missing or invalid.
	CloseUnauthorized = 4001
	// CloseSessionNotReady means the session is not (yet) queryable by the
	// realtime endpoint. Freshly created sessions can hit this while the
	// backend's write is still propagating.
	CloseSessionNotReady = 4004
)

// CloseClass groups close codes by how the client should react.
type CloseClass int

const (
	// CloseClassNormal is an orderly shutdown; do not reconnect.
	CloseClassNormal CloseClass = iota
	// CloseClassRetryable may succeed on a later attempt.
	CloseClassRetryable
	// CloseClassFatal will not succeed by retrying.
	CloseClassFatal
)

func (c CloseClass) String() string {
	switch c {
	case CloseClassNormal:
		return "normal"
	case CloseClassRetryable:
		return "retryable"
	case CloseClassFatal:
		return "fatal"
	default:
		return fmt.Sprintf("CloseClass(%d)", int(c))
	}
}

// ClassifyClose maps a close code to a CloseClass.
//
// 4004 and transport-level failures (abnormal closure, internal error, no
// code) are retryable. Other application codes and policy violations are
// fatal.
func ClassifyClose(code int) CloseClass {
	switch {
	case code == CloseNormal || code == CloseGoingAway:
		return CloseClassNormal
	case code == CloseSessionNotReady:
		return CloseClassRetryable
	case code == 0 || code == CloseAbnormal || code == CloseInternalError:
		return CloseClassRetryable
	case code == ClosePolicyViolation, code == CloseUnauthorized:
		return CloseClassFatal
	case code >= 4000 && code <= 4999:
		return CloseClassFatal
	default:
		return CloseClassRetryable
	}
}

// ChannelURL derives the realtime endpoint for a session from the REST base
// URL: http becomes ws, https becomes wss, and the token travels in the
// query string.
func ChannelURL(baseURL, sessionID, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/interview/ws/" + url.PathEscape(sessionID)
	u.RawPath = ""
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
