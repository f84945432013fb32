package message

// Canonical message types. Raw types outside this set narrow to TypeText.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeDocument = "document"
	TypeAudio    = "audio"
	TypeVideo    = "video"
)

// NormalizedMessage is the canonical shape posted downstream.
type NormalizedMessage struct {
	From       string     `json:"from"`
	Sender     Sender     `json:"sender"`
	Type       string     `json:"type"`
	Body       string     `json:"body"`
	Timestamp  string     `json:"timestamp"`
	NotifyName string     `json:"notifyName"`
	MediaData  *MediaData `json:"mediaData,omitempty"`
	Metadata   Metadata   `json:"metadata"`
}

type Sender struct {
	Name string `json:"name"`
}

type MediaData struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

type Metadata struct {
	Source        string `json:"source"`
	MessageID     string `json:"messageId"`
	IsGroup       bool   `json:"isGroup"`
	ChatID        string `json:"chatId"`
	TimestampNode int64  `json:"timestamp_node"`
	MessageType   string `json:"messageType"`
}

// Reason explains why a raw event was rejected.
type Reason string

const (
	ReasonAccepted        Reason = "accepted"
	ReasonBroadcast       Reason = "broadcast"
	ReasonGroupNoMention  Reason = "group_without_mention"
	ReasonFilteredByRules Reason = "filtered"
)

// mediaTypes are the raw types the any-message feed reports as media.
var mediaTypes = map[string]struct{}{
	"image":    {},
	"document": {},
	"audio":    {},
	"ptt":      {},
	"video":    {},
	"sticker":  {},
}

func IsMediaType(rawType string) bool {
	_, ok := mediaTypes[rawType]
	return ok
}
