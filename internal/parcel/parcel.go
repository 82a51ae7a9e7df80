package parcel

import "time"

// LabelImage is a photograph of a parcel label. It lives only for one
// pipeline run and is never persisted.
type LabelImage struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
	Source      string // device that produced the frame
}

// Entry is a normalized parcel record, ready for the ledger
type Entry struct {
	Supplier      string    `json:"supplier"`
	ResidentName  string    `json:"resident_name"`
	Unit          string    `json:"unit"`
	ParcelType    string    `json:"parcel_type"`
	ParcelTypeRaw string    `json:"parcel_type_raw"` // label text the type was matched from
	LoggedAt      time.Time `json:"logged_at"`
}

// AppendResult describes a row written to the ledger
type AppendResult struct {
	Row          []string `json:"row"`
	UpdatedRange string   `json:"updated_range,omitempty"`
	Attempts     int      `json:"attempts"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// SystemTime is the wall-clock TimeSource
type SystemTime struct{}

func (SystemTime) Now() time.Time {
	return time.Now()
}
