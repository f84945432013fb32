package status

import (
	"wabridge/pkg/errors"
)

// Class is the debouncer's reading of a raw status label.
type Class string

const (
	ClassAffirmative   Class = "affirmative"
	ClassNegative      Class = "negative"
	ClassIndeterminate Class = "indeterminate"
)

// Record is the single persisted view of the session state. Each write replaces the previous one.
type Record struct {
	LoggedIn           bool   `json:"loggedIn"`
	Message            string `json:"message"`
	Confirmations      int    `json:"confirmations"`
	Timestamp          int64  `json:"timestamp"` // unix milliseconds
	LocalizedTimestamp string `json:"localizedTimestamp"`
}

// Decision describes what the debouncer did with one signal.
type Decision struct {
	Class         Class
	LoggedIn      bool
	Confirmations int
	Persisted     bool
	Record        *Record
	PersistErr    error
}

type Snapshot struct {
	LastLoggedIn  bool `json:"lastLoggedIn"`
	Confirmations int  `json:"confirmations"`
}

var ErrRecordNotFound = errors.ErrNotFound.WithDetail("message", "status record not found")

const (
	MessageConnected        = "WhatsApp connected successfully"
	MessageDisconnected     = "WhatsApp disconnected"
	MessageDefaultLoggedIn  = "Connected and verified"
	MessageDefaultLoggedOut = "Waiting for connection"
	MessageQRCodeGenerated  = "QR code generated - waiting for scan"
	MessageClientStarted    = "Client initialized - verifying connection"
	MessageNotFound         = "Status not found"
)

var (
	DefaultAffirmativeLabels = []string{"isLogged", "qrReadSuccess", "chatsAvailable", LabelClientInitialized}
	DefaultNegativeLabels    = []string{"notLogged", "browserClose", "qrReadFail", "qrCodeGenerated"}
)

// LabelClientInitialized is emitted by the bridge itself once the chat client
// session has had time to settle after startup.
const LabelClientInitialized = "clientInitialized"

var labelMessages = map[string]string{
	"qrCodeGenerated":      MessageQRCodeGenerated,
	LabelClientInitialized: MessageClientStarted,
}
