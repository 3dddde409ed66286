package models

import (
	"encoding/json"
	"time"
)

// WaitingMessage is the message of the record served before any ingest.
const WaitingMessage = "Waiting for first recognition..."

// NoMatchMessage is the message of every unrecognized record.
const NoMatchMessage = "No user match"

// RecognitionRecord is the latest-recognition record. It is either
// Recognized or Unrecognized and is never modified once built.
type RecognitionRecord interface {
	IsRecognized() bool
	ReceivedAt() time.Time
}

type DeviceInfo struct {
	DeviceIP    *string `json:"deviceIp"`
	DeviceName  *string `json:"deviceName"`
	DeviceNo    *string `json:"deviceNo"`
	CaptureTime *string `json:"captureTime"`
	TrackID     *string `json:"trackId"`
}

type Metadata struct {
	TenantID      *string `json:"tenantId"`
	CaptureID     *string `json:"captureId"`
	DeviceID      *string `json:"deviceId"`
	RecogDeviceID *string `json:"recogDeviceId"`
	RecogDeviceNo *string `json:"recogDeviceNo"`
	TrackID       *string `json:"trackId"`
	SceneCode     *string `json:"sceneCode"`
}

// RecognizedImages extends ResolvedImages with the device-supplied capture URL.
type RecognizedImages struct {
	ResolvedImages
	CapturePic *string `json:"capturePic"`
}

type Unrecognized struct {
	Message    string          `json:"message"`
	Timestamp  time.Time       `json:"timestamp"`
	DeviceInfo *DeviceInfo     `json:"deviceInfo"`
	Images     *ResolvedImages `json:"images"`
	RawData    map[string]any  `json:"rawData"`
}

func (u Unrecognized) IsRecognized() bool    { return false }
func (u Unrecognized) ReceivedAt() time.Time { return u.Timestamp }

func (u Unrecognized) MarshalJSON() ([]byte, error) {
	type plain Unrecognized
	return json.Marshal(struct {
		Recognized bool `json:"recognized"`
		plain
	}{false, plain(u)})
}

type Recognized struct {
	Name        string           `json:"name"`
	PersonID    string           `json:"personId"`
	PersonCode  *string          `json:"personCode"`
	GroupName   *string          `json:"groupName"`
	CaptureTime *string          `json:"captureTime"`
	// DeviceIP, DeviceName and DeviceNo repeat deviceInfo at the top level,
	// where the dashboard reads them.
	DeviceIP    *string          `json:"deviceIp"`
	DeviceName  *string          `json:"deviceName"`
	DeviceNo    *string          `json:"deviceNo"`
	DeviceInfo  DeviceInfo       `json:"deviceInfo"`
	Timestamp   time.Time        `json:"timestamp"`
	Images      RecognizedImages `json:"images"`
	Metadata    Metadata         `json:"metadata"`
	BodyInfo    BodyAttributes   `json:"bodyInfo"`
	RawData     map[string]any   `json:"rawData"`
}

func (r Recognized) IsRecognized() bool    { return true }
func (r Recognized) ReceivedAt() time.Time { return r.Timestamp }

func (r Recognized) MarshalJSON() ([]byte, error) {
	type plain Recognized
	return json.Marshal(struct {
		Recognized bool `json:"recognized"`
		plain
	}{true, plain(r)})
}

// Waiting returns the sentinel record served until the first ingest.
func Waiting(startedAt time.Time) Unrecognized {
	return Unrecognized{
		Message:   WaitingMessage,
		Timestamp: startedAt,
	}
}
