package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ID is an identifier the remote API sends either as a JSON string or as a JSON number. It is
// always held and re-encoded as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return errors.New("id must be a string or a number")
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Branch is a restaurant location the user may act for.
type Branch struct {
	ID     ID     `json:"id"`
	Branch string `json:"branch"`
}

// User is the account returned by the authenticate call.
type User struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Level    string   `json:"level"`
	Access   []string `json:"access"`
	Branches []Branch `json:"branches"`
}

// CurrentUser is the decoded result of a successful authentication.
type CurrentUser struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// AuthResponse is the authenticate envelope. It is persisted verbatim under KeyCurrentUser.
type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *CurrentUser `json:"data"`
}

// Validate reports whether u matches the CurrentUser schema. Every scalar field is required
// and both lists must be present (empty is fine, null is not).
func (u *CurrentUser) Validate() error {
	if u == nil {
		return errors.New("current user is missing")
	}
	if strings.TrimSpace(u.Token) == "" {
		return errors.New("current user token is empty")
	}
	if strings.TrimSpace(string(u.User.ID)) == "" {
		return errors.New("user id is empty")
	}
	if strings.TrimSpace(u.User.Name) == "" {
		return errors.New("user name is empty")
	}
	if strings.TrimSpace(u.User.Email) == "" {
		return errors.New("user email is empty")
	}
	if strings.TrimSpace(u.User.Level) == "" {
		return errors.New("user level is empty")
	}
	if u.User.Access == nil {
		return errors.New("user access list is missing")
	}
	if u.User.Branches == nil {
		return errors.New("user branch list is missing")
	}
	for i, b := range u.User.Branches {
		if strings.TrimSpace(string(b.ID)) == "" {
			return errors.New("branch " + strconv.Itoa(i) + " has no id")
		}
	}
	return nil
}

// HasBranch reports whether branchID is one of the user's branches.
func (u *CurrentUser) HasBranch(branchID string) bool {
	if u == nil {
		return false
	}
	for _, b := range u.User.Branches {
		if string(b.ID) == branchID {
			return true
		}
	}
	return false
}

// Validate reports whether r is a successful envelope carrying a valid CurrentUser.
func (r *AuthResponse) Validate() error {
	if r == nil {
		return errors.New("auth response is missing")
	}
	if !r.Success {
		return errors.New("auth response is not successful")
	}
	return r.Data.Validate()
}

// tokenRecord is the cookie-like record stored under KeySession.
type tokenRecord struct {
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
}

type selectedBranch struct {
	Branch string `json:"branch"`
}
