package payload

import (
	"encoding/json"
	"strconv"

	"github.com/your-org/facehook/internal/models"
)

// MapEvent maps event-object keys onto a DetectionPayload by exact name.
// The event map itself becomes Raw, unknown keys included.
func MapEvent(event map[string]any) models.DetectionPayload {
	if event == nil {
		event = map[string]any{}
	}
	s := func(keys ...string) *string {
		for _, k := range keys {
			if v := scalar(event[k]); v != nil {
				return v
			}
		}
		return nil
	}

	return models.DetectionPayload{
		PersonID:   s("personId"),
		Name:       s("name"),
		PersonCode: s("personCode"),
		GroupName:  s("groupName"),

		CaptureTime: s("captureTime"),
		TrackID:     s("trackId"),
		SceneCode:   s("sceneCode"),

		Device: models.DeviceMeta{
			IP:            s("deviceIp"),
			Name:          s("deviceName"),
			No:            s("deviceNo"),
			ID:            s("deviceId"),
			RecogDeviceID: s("recogDeviceId"),
			RecogDeviceNo: s("recogDeviceNo"),
			TenantID:      s("tenantId"),
			CaptureID:     s("captureId"),
		},
		Body: models.BodyAttributes{
			Gender:      s("gender"),
			Age:         s("age"),
			UpperColor:  s("upperColor"),
			UpperType:   s("upperType"),
			BottomColor: s("bottomColor"),
			BottomType:  s("bottomType"),
			Hair:        s("hair"),
			Hat:         s("hat"),
			HatColor:    s("hatColor"),
			Glasses:     s("glassess"),
			Mask:        s("mask"),
		},
		Refs: models.ImageRefs{
			FacePic:    s("facePicRef", "facePic"),
			Photo:      s("photoRef", "photo"),
			CapturePic: s("capturePic"),
		},

		Raw: event,
	}
}

// scalar renders a JSON scalar as a string. Objects, arrays and null give nil.
func scalar(v any) *string {
	var out string
	switch t := v.(type) {
	case string:
		out = t
	case json.Number:
		out = t.String()
	case float64:
		out = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		out = strconv.FormatBool(t)
	default:
		return nil
	}
	return &out
}
