package message

import (
	"fmt"
	"time"

	"wabridge/internal/constants"
	"wabridge/pkg/models"
)

type Normalizer struct {
	source string
	now    func() time.Time
}

func NewNormalizer(source string, now func() time.Time) *Normalizer {
	if source == "" {
		source = constants.DefaultSourceTag
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{source: source, now: now}
}

// Normalize never fails: every missing field falls back to a default.
func (n *Normalizer) Normalize(raw models.RawMessage) NormalizedMessage {
	now := n.now()

	msg := NormalizedMessage{
		From:       raw.From,
		Sender:     Sender{Name: senderName(raw)},
		Type:       NarrowType(raw.Type),
		Body:       firstNonEmpty(raw.Body, raw.Content, raw.Caption),
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
		NotifyName: raw.NotifyName,
		Metadata: Metadata{
			Source:        n.source,
			MessageID:     raw.ID,
			IsGroup:       raw.IsGroup(),
			ChatID:        firstNonEmpty(raw.ChatID, raw.From),
			TimestampNode: now.UnixMilli(),
			MessageType:   raw.Type,
		},
	}

	if raw.MediaData != nil {
		msg.MediaData = normalizeMedia(*raw.MediaData, now)
	}

	return msg
}

func NarrowType(rawType string) string {
	switch rawType {
	case "image":
		return TypeImage
	case "document":
		return TypeDocument
	case "audio", "ptt":
		return TypeAudio
	case "video":
		return TypeVideo
	default:
		return TypeText
	}
}

func normalizeMedia(raw models.RawMedia, now time.Time) *MediaData {
	media := &MediaData{
		Filename: raw.Filename,
		Mimetype: raw.Mimetype,
		URL:      raw.URL,
		Size:     raw.Size,
	}
	if media.Filename == "" {
		media.Filename = fmt.Sprintf("file_%d.bin", now.UnixMilli())
	}
	if media.Mimetype == "" {
		media.Mimetype = constants.DefaultMimeType
	}
	if media.Size < 0 {
		media.Size = 0
	}
	return media
}

func senderName(raw models.RawMessage) string {
	var explicit, contact string
	if raw.Sender != nil {
		explicit = raw.Sender.Name
	}
	if raw.Contact != nil {
		contact = raw.Contact.Name
	}
	if name := firstNonEmpty(explicit, raw.NotifyName, contact); name != "" {
		return name
	}
	return constants.DefaultSenderName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
