package api

import "time"

// Room is a conversation space the user is a member of.
type Room struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Type         string    `json:"type"` // "group" or "direct"
	IsLocked     bool      `json:"isLocked"`
	TeamID       string    `json:"teamId,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	CreatorID    string    `json:"creatorId"`
	Created      time.Time `json:"created"`
}

// Person is a platform user.
type Person struct {
	ID          string    `json:"id"`
	Emails      []string  `json:"emails"`
	DisplayName string    `json:"displayName"`
	NickName    string    `json:"nickName,omitempty"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	OrgID       string    `json:"orgId,omitempty"`
	Created     time.Time `json:"created"`
}

// Message is a single message in a room.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	RoomType    string    `json:"roomType,omitempty"`
	PersonID    string    `json:"personId"`
	PersonEmail string    `json:"personEmail,omitempty"`
	Text        string    `json:"text,omitempty"`
	Markdown    string    `json:"markdown,omitempty"`
	HTML        string    `json:"html,omitempty"`
	Files       []string  `json:"files,omitempty"`
	Created     time.Time `json:"created"`
}

// Membership records a person's membership in a room.
type Membership struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"roomId"`
	PersonID          string    `json:"personId"`
	PersonEmail       string    `json:"personEmail,omitempty"`
	PersonDisplayName string    `json:"personDisplayName,omitempty"`
	IsModerator       bool      `json:"isModerator"`
	IsMonitor         bool      `json:"isMonitor"`
	Created           time.Time `json:"created"`
}

// itemsPage is the paged list envelope every collection endpoint returns.
type itemsPage[T any] struct {
	Items []T `json:"items"`
}
