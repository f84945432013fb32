package models

// RawMessage mirrors the chat client's message object. Every field is optional
// except From; which fields are populated depends on Type.
type RawMessage struct {
	ID               string      `json:"id,omitempty"`
	From             string      `json:"from"`
	ChatID           string      `json:"chatId,omitempty"`
	Type             string      `json:"type,omitempty"`
	Body             string      `json:"body,omitempty"`
	Content          string      `json:"content,omitempty"`
	Caption          string      `json:"caption,omitempty"`
	NotifyName       string      `json:"notifyName,omitempty"`
	Sender           *RawContact `json:"sender,omitempty"`
	Contact          *RawContact `json:"contact,omitempty"`
	IsGroupMsg       *bool       `json:"isGroupMsg,omitempty"`
	MentionedJidList []string    `json:"mentionedJidList,omitempty"`
	MediaData        *RawMedia   `json:"mediaData,omitempty"`
}

type RawContact struct {
	Name string `json:"name,omitempty"`
}

type RawMedia struct {
	Filename string `json:"filename,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// IsGroup reports the group flag, treating an absent flag as false.
func (m RawMessage) IsGroup() bool {
	return m.IsGroupMsg != nil && *m.IsGroupMsg
}
