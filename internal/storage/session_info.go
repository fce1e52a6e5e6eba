// Package storage persists client-local state under the client home dir.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalSessionInfo is machine-local metadata about an interview session the
// user has opened. It lets `resume` without an id pick up the latest session.
type LocalSessionInfo struct {
	// SessionID is the server-assigned session id.
	SessionID string `json:"sessionId"`
	// AgentType is the interviewer persona.
	AgentType string `json:"agentType,omitempty"`
	// Status is the last status seen for the session.
	Status string `json:"status,omitempty"`
	// LastOpenedAtMs is when the session was last adopted by the client.
	LastOpenedAtMs int64 `json:"lastOpenedAtMs,omitempty"`
	// UpdatedAtMs is the wall-clock timestamp of the most recent write.
	UpdatedAtMs int64 `json:"updatedAtMs,omitempty"`
}

// LoadLocalSessionInfo reads the LocalSessionInfo for a session id.
//
// ok is false when no entry exists.
func LoadLocalSessionInfo(home string, sessionID string) (info LocalSessionInfo, ok bool, err error) {
	path, err := localSessionInfoPath(home, sessionID)
	if err != nil {
		return LocalSessionInfo{}, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LocalSessionInfo{}, false, nil
		}
		return LocalSessionInfo{}, false, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return LocalSessionInfo{}, false, err
	}
	return info, true, nil
}

// SaveLocalSessionInfo writes the entry to disk atomically.
func SaveLocalSessionInfo(home string, info LocalSessionInfo) error {
	if strings.TrimSpace(info.SessionID) == "" {
		return fmt.Errorf("missing session id")
	}
	path, err := localSessionInfoPath(home, info.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	info.UpdatedAtMs = time.Now().UnixMilli()
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, raw)
}

// UpdateLocalSessionInfo loads, mutates, and persists an entry.
func UpdateLocalSessionInfo(home string, sessionID string, update func(*LocalSessionInfo)) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("missing session id")
	}
	info := LocalSessionInfo{SessionID: sessionID}
	if existing, ok, err := LoadLocalSessionInfo(home, sessionID); err != nil {
		return err
	} else if ok {
		info = existing
	}
	update(&info)
	info.SessionID = sessionID
	return SaveLocalSessionInfo(home, info)
}

// ListLocalSessions returns every recorded session, most recently opened
// first. Unreadable entries are skipped.
func ListLocalSessions(home string) ([]LocalSessionInfo, error) {
	if strings.TrimSpace(home) == "" {
		return nil, fmt.Errorf("missing client home")
	}
	dirs, err := os.ReadDir(filepath.Join(home, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []LocalSessionInfo
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(home, "sessions", d.Name(), "local.json"))
		if err != nil {
			continue
		}
		var info LocalSessionInfo
		if err := json.Unmarshal(data, &info); err != nil || info.SessionID == "" {
			continue
		}
		out = append(out, info)
	}
	sortByLastOpened(out)
	return out, nil
}

// LastSession returns the most recently opened session.
func LastSession(home string) (LocalSessionInfo, bool, error) {
	all, err := ListLocalSessions(home)
	if err != nil || len(all) == 0 {
		return LocalSessionInfo{}, false, err
	}
	return all[0], true, nil
}

func sortByLastOpened(infos []LocalSessionInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].LastOpenedAtMs > infos[j].LastOpenedAtMs
	})
}

// localSessionInfoPath returns the absolute path for local session metadata.
func localSessionInfoPath(home string, sessionID string) (string, error) {
	if strings.TrimSpace(home) == "" {
		return "", fmt.Errorf("missing client home")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("missing session id")
	}
	sessionID = strings.ReplaceAll(sessionID, string(os.PathSeparator), "_")
	return filepath.Join(home, "sessions", sessionID, "local.json"), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
