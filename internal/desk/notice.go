package desk

import (
	"time"

	"github.com/zombor/parcel-desk/internal/parcel"
)

// Notice is a resident notification waiting to be sent from the desk PC
type Notice struct {
	ID           string    `json:"id"`
	Unit         string    `json:"unit"`
	ResidentName string    `json:"name"`
	Supplier     string    `json:"supplier"`
	ParcelType   string    `json:"parcel_type"`
	LoggedAt     time.Time `json:"timestamp"`
}

// LogResult is the outcome of one successful pipeline run
type LogResult struct {
	Entry  *parcel.Entry        `json:"entry"`
	Append *parcel.AppendResult `json:"append"`
	// Notice is nil when no queue is configured or queueing failed
	Notice      *Notice `json:"notice,omitempty"`
	NoticeError string  `json:"notice_error,omitempty"`
}

// QueueStatus summarizes the pending notices
type QueueStatus struct {
	Size  int      `json:"queue_size"`
	Units []string `json:"pending_units"`
}
