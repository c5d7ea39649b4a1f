package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Session is the identity huntctl acts as, plus the event it targets by
// default.
type Session struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	MemberID    string `json:"member_id"`
	Admin       bool   `json:"admin"`
	EventID     string `json:"event_id,omitempty"`
}

var ErrNoEvent = errors.New("no event selected: pass --event or run `huntctl use <event_id>`")

// NewSession builds the session for a freshly verified token. The default
// event of the previous session carries over so a re-login keeps targeting
// the same hunt.
func NewSession(token string, me Me, prev Session) Session {
	return Session{
		AccessToken: token,
		UserID:      me.UserID,
		MemberID:    me.MemberID,
		Admin:       me.Admin,
		EventID:     prev.EventID,
	}
}

// Event resolves the event a command acts on: an explicit id wins over the
// session default.
func (s Session) Event(explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if s.EventID != "" {
		return s.EventID, nil
	}
	return "", ErrNoEvent
}

// UseEvent returns a copy of the session targeting eventID by default.
func (s Session) UseEvent(eventID string) (Session, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return s, ErrNoEvent
	}
	s.EventID = id
	return s, nil
}

func (s Session) Role() string {
	if s.Admin {
		return "admin"
	}
	return "player"
}

// BaseDir returns ~/.huntctl, creating it when missing.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".huntctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func SaveSession(s Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadSession() (Session, error) {
	path, err := sessionPath()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("corrupt session file: %w", err)
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, fmt.Errorf("no access token found in session")
	}
	return s, nil
}

func ClearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
