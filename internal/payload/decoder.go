// Package payload turns an inbound device request into a DetectionPayload,
// whatever encoding the device chose for it.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/your-org/facehook/internal/models"
)

// BodyKind is the decoding branch chosen from the declared content type.
type BodyKind int

const (
	Multipart BodyKind = iota
	FormURLEncoded
	JSONBody
	RawBinary
)

func (k BodyKind) String() string {
	switch k {
	case Multipart:
		return "multipart"
	case FormURLEncoded:
		return "form"
	case JSONBody:
		return "json"
	default:
		return "binary"
	}
}

// EnvelopeFields are the form fields that may carry the JSON-encoded event
// array, checked in order.
var EnvelopeFields = []string{"data", "json"}

const (
	defaultMaxFileBytes = 10 << 20
	defaultMaxFiles     = 32
	defaultMaxFields    = 256
	maxFieldBytes       = 1 << 20
)

// Result is one decoded request.
type Result struct {
	Kind    BodyKind
	Payload models.DetectionPayload
	// Uploads are the file parts (or the raw body) in arrival order.
	Uploads []models.Upload
	// Envelope is the field the event came from, empty when none was used.
	Envelope string
}

type Decoder struct {
	MaxFileBytes int64
	// MaxFiles and MaxFields cap file parts and plain fields separately.
	MaxFiles  int
	MaxFields int
}

func NewDecoder(maxFileBytes int64) *Decoder {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &Decoder{MaxFileBytes: maxFileBytes, MaxFiles: defaultMaxFiles, MaxFields: defaultMaxFields}
}

// Classify picks the decoding branch for a Content-Type header value.
func Classify(contentType string) BodyKind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return RawBinary
	}
	switch {
	case strings.HasPrefix(mt, "multipart/"):
		return Multipart
	case mt == "application/x-www-form-urlencoded", mt == "text/plain":
		return FormURLEncoded
	case mt == "application/json", strings.HasSuffix(mt, "+json"):
		return JSONBody
	default:
		return RawBinary
	}
}

// Decode reads the request body once, on the branch its content type selects.
func (d *Decoder) Decode(r *http.Request) (*Result, error) {
	contentType := r.Header.Get("Content-Type")
	kind := Classify(contentType)
	res := &Result{Kind: kind}

	var (
		event map[string]any
		err   error
	)
	switch kind {
	case Multipart:
		var fields url.Values
		fields, res.Uploads, err = d.readMultipart(r)
		if err != nil {
			return nil, err
		}
		event, res.Envelope, err = eventFromFields(fields)
	case FormURLEncoded:
		var body []byte
		body, err = readBody(r)
		if err != nil {
			return nil, err
		}
		if isPlainText(contentType) && looksLikeJSON(body) {
			res.Kind = JSONBody
			event, err = jsonEvent(body)
			break
		}
		// ParseQuery keeps every pair it managed to parse; a stray bad escape
		// from the device should not lose the rest.
		fields, _ := url.ParseQuery(string(body))
		event, res.Envelope, err = eventFromFields(fields)
	case JSONBody:
		var body []byte
		body, err = readBody(r)
		if err != nil {
			return nil, err
		}
		event, err = jsonEvent(body)
	default:
		var up *models.Upload
		up, err = d.readBinary(r, contentType)
		if up != nil {
			res.Uploads = append(res.Uploads, *up)
		}
		event = map[string]any{}
	}
	if err != nil {
		return nil, err
	}

	res.Payload = MapEvent(event)
	return res, nil
}

func (d *Decoder) readMultipart(r *http.Request) (url.Values, []models.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, &DecodeError{Kind: Unreadable, Err: err}
	}

	fields := url.Values{}
	var uploads []models.Upload
	nfields := 0
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &DecodeError{Kind: Unreadable, Err: err}
		}

		name := part.FormName()
		if part.FileName() == "" {
			if nfields >= d.MaxFields {
				part.Close()
				return nil, nil, &DecodeError{Kind: TooLarge, Err: fmt.Errorf("more than %d fields", d.MaxFields)}
			}
			nfields++
			value, err := readLimited(part, maxFieldBytes)
			part.Close()
			if err != nil {
				return nil, nil, fieldError(name, err)
			}
			fields.Add(name, string(value))
			continue
		}

		if len(uploads) >= d.MaxFiles {
			part.Close()
			return nil, nil, &DecodeError{Kind: TooLarge, Err: fmt.Errorf("more than %d files", d.MaxFiles)}
		}
		data, err := readLimited(part, d.MaxFileBytes)
		part.Close()
		if err != nil {
			return nil, nil, fieldError(name, err)
		}
		uploads = append(uploads, models.Upload{
			FieldName:    name,
			OriginalName: part.FileName(),
			ContentType:  part.Header.Get("Content-Type"),
			Data:         data,
		})
	}
	return fields, uploads, nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := readLimited(r.Body, maxFieldBytes*8)
	if err != nil {
		return nil, fieldError("", err)
	}
	return body, nil
}

func isPlainText(contentType string) bool {
	mt, _, _ := mime.ParseMediaType(contentType)
	return mt == "text/plain"
}

func looksLikeJSON(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) > 0 && (body[0] == '{' || body[0] == '[')
}

// jsonEvent takes an object as the event and an array as its envelope.
func jsonEvent(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	v, err := parseJSON(body)
	if err != nil {
		return nil, &DecodeError{Kind: MalformedEnvelope, Field: bodyField, Err: err}
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		event, err := firstEvent(t)
		if err != nil {
			return nil, &DecodeError{Kind: MalformedEnvelope, Field: bodyField, Err: err}
		}
		return event, nil
	default:
		return nil, &DecodeError{Kind: MalformedEnvelope, Field: bodyField, Err: errors.New("not an object or array")}
	}
}

func (d *Decoder) readBinary(r *http.Request, contentType string) (*models.Upload, error) {
	data, err := readLimited(r.Body, d.MaxFileBytes)
	if err != nil {
		return nil, fieldError("", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &models.Upload{
		OriginalName: "upload" + extensionFor(contentType),
		ContentType:  contentType,
		Data:         data,
	}, nil
}

// eventFromFields prefers a JSON envelope field and otherwise uses the form
// fields themselves as the event object.
func eventFromFields(fields url.Values) (map[string]any, string, error) {
	for _, name := range EnvelopeFields {
		raw := fields.Get(name)
		if raw == "" {
			continue
		}
		v, err := parseJSON([]byte(raw))
		if err != nil {
			return nil, "", &DecodeError{Kind: MalformedEnvelope, Field: name, Err: err}
		}
		arr, ok := v.([]any)
		if !ok {
			return nil, "", &DecodeError{Kind: MalformedEnvelope, Field: name, Err: errors.New("envelope is not an array")}
		}
		event, err := firstEvent(arr)
		if err != nil {
			return nil, "", &DecodeError{Kind: MalformedEnvelope, Field: name, Err: err}
		}
		return event, name, nil
	}

	event := make(map[string]any, len(fields))
	for k, vs := range fields {
		if len(vs) == 1 {
			event[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		event[k] = list
	}
	return event, "", nil
}

func firstEvent(arr []any) (map[string]any, error) {
	if len(arr) == 0 {
		return map[string]any{}, nil
	}
	event, ok := arr[0].(map[string]any)
	if !ok {
		return nil, errors.New("first element is not an object")
	}
	return event, nil
}

// parseJSON keeps numbers as json.Number so ids survive without float rounding.
func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

var errTooLarge = errors.New("size limit exceeded")

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errTooLarge
		}
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

func fieldError(field string, err error) error {
	if errors.Is(err, errTooLarge) {
		return &DecodeError{Kind: TooLarge, Field: field, Err: err}
	}
	return &DecodeError{Kind: Unreadable, Field: field, Err: err}
}

func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mt {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
