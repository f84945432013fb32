package message

import (
	"wabridge/internal/constants"
	"wabridge/pkg/models"
)

// IsEligible reports whether a raw event should be forwarded downstream.
func IsEligible(raw models.RawMessage) bool {
	return Classify(raw) == ReasonAccepted
}

// Classify applies the eligibility rules in order and returns the first
// rejection reason, or ReasonAccepted.
func Classify(raw models.RawMessage) Reason {
	if raw.From == constants.BroadcastSenderID {
		return ReasonBroadcast
	}
	if raw.IsGroup() && len(raw.MentionedJidList) == 0 {
		return ReasonGroupNoMention
	}
	return ReasonAccepted
}
