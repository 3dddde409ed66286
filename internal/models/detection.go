package models

// DetectionPayload is the normalized view of one detection event reported by
// the camera device. A nil field was absent from the event object, or held a
// value that is not a scalar. The payload is built once per request and is
// not modified afterwards.
type DetectionPayload struct {
	PersonID   *string
	Name       *string
	PersonCode *string
	GroupName  *string

	CaptureTime *string
	TrackID     *string
	SceneCode   *string

	Device DeviceMeta
	Body   BodyAttributes
	Refs   ImageRefs

	// Raw is the whole event object as decoded, unknown keys included.
	Raw map[string]any
}

// DeviceMeta is passed through from the device verbatim.
type DeviceMeta struct {
	IP            *string
	Name          *string
	No            *string
	ID            *string
	RecogDeviceID *string
	RecogDeviceNo *string
	TenantID      *string
	CaptureID     *string
}

// BodyAttributes are opaque values from the device's body analysis.
type BodyAttributes struct {
	Gender      *string `json:"gender"`
	Age         *string `json:"age"`
	UpperColor  *string `json:"upperColor"`
	UpperType   *string `json:"upperType"`
	BottomColor *string `json:"bottomColor"`
	BottomType  *string `json:"bottomType"`
	Hair        *string `json:"hair"`
	Hat         *string `json:"hat"`
	HatColor    *string `json:"hatColor"`
	Glasses     *string `json:"glasses"` // wire key is "glassess"
	Mask        *string `json:"mask"`
}

// ImageRefs name resources on the device that can be fetched instead of an
// uploaded file. They only mean something together with Device.IP.
type ImageRefs struct {
	FacePic *string
	Photo   *string
	// CapturePic is a device-supplied URL, exposed as-is.
	CapturePic *string
}

// Upload is a file received with the request, held in memory until the
// image resolver stores it. Parts arrive in request order.
type Upload struct {
	FieldName    string
	OriginalName string
	ContentType  string
	Data         []byte
}

// AttachedFile is an Upload after it has been written to the artifact store.
type AttachedFile struct {
	FieldName    string
	OriginalName string
	StoredName   string
	SizeBytes    int64
	StoragePath  string
}

// ResolvedImages holds the reachable URL for each image role, nil when the
// role could not be resolved.
type ResolvedImages struct {
	OriginPic   *string `json:"originPic"`
	BodyPic     *string `json:"bodyPic"`
	FacePic     *string `json:"facePic"`
	PersonPhoto *string `json:"personPhoto"`
}
