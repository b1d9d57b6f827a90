package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique login session ID with the "sess_" prefix
// Format: sess_<uuid>
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewDownloadID generates a unique download record ID with the "dl_" prefix
// Format: dl_<uuid>
func NewDownloadID() string {
	return "dl_" + uuid.New().String()
}
