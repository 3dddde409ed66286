// Package recognition classifies decoded detection events, builds the
// latest-recognition record and keeps it for polling clients.
package recognition

import (
	"time"

	"github.com/your-org/facehook/internal/models"
)

// IsRecognized is true only when both personId and name are non-empty.
func IsRecognized(p *models.DetectionPayload) bool {
	return nonEmpty(p.PersonID) && nonEmpty(p.Name)
}

// Build maps a payload and its resolved images onto a record. Timestamp is
// always receivedAt; the device capture time is kept in its own field.
func Build(p *models.DetectionPayload, images models.ResolvedImages, receivedAt time.Time) models.RecognitionRecord {
	device := models.DeviceInfo{
		DeviceIP:    p.Device.IP,
		DeviceName:  p.Device.Name,
		DeviceNo:    p.Device.No,
		CaptureTime: p.CaptureTime,
		TrackID:     p.TrackID,
	}
	raw := p.Raw
	if raw == nil {
		raw = map[string]any{}
	}

	if !IsRecognized(p) {
		return models.Unrecognized{
			Message:    models.NoMatchMessage,
			Timestamp:  receivedAt,
			DeviceInfo: &device,
			Images:     &images,
			RawData:    raw,
		}
	}

	return models.Recognized{
		Name:        *p.Name,
		PersonID:    *p.PersonID,
		PersonCode:  p.PersonCode,
		GroupName:   p.GroupName,
		CaptureTime: p.CaptureTime,
		DeviceIP:    p.Device.IP,
		DeviceName:  p.Device.Name,
		DeviceNo:    p.Device.No,
		DeviceInfo:  device,
		Timestamp:   receivedAt,
		Images: models.RecognizedImages{
			ResolvedImages: images,
			CapturePic:     p.Refs.CapturePic,
		},
		Metadata: models.Metadata{
			TenantID:      p.Device.TenantID,
			CaptureID:     p.Device.CaptureID,
			DeviceID:      p.Device.ID,
			RecogDeviceID: p.Device.RecogDeviceID,
			RecogDeviceNo: p.Device.RecogDeviceNo,
			TrackID:       p.TrackID,
			SceneCode:     p.SceneCode,
		},
		BodyInfo: p.Body,
		RawData:  raw,
	}
}

func nonEmpty(s *string) bool { return s != nil && *s != "" }
