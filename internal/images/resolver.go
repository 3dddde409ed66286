// Package images resolves the image roles of a detection event to URLs under
// the /uploads namespace, storing uploaded files and fetching device-side
// resources as needed.
package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facehook/internal/models"
	"github.com/your-org/facehook/internal/observability"
	"github.com/your-org/facehook/internal/storage"
)

// ErrStorage marks a failed write to the artifact store. It is fatal for the
// request.
var ErrStorage = errors.New("artifact storage failed")

// errFetchPanic marks a device fetch that panicked. Like ErrStorage it fails
// the request.
var errFetchPanic = errors.New("device fetch panicked")

// UploadsPath is the URL namespace artifacts are served under.
const UploadsPath = "/uploads/"

type Role int

const (
	RoleOrigin Role = iota
	RoleBody
	RoleFace
	RolePersonPhoto
)

// roleFields lists field names per role, canonical name first.
var roleFields = map[Role][]string{
	RoleOrigin:      {"originPic", "origin"},
	RoleBody:        {"bodyPic", "body"},
	RoleFace:        {"facePic", "face"},
	RolePersonPhoto: {"personPhoto", "photo"},
}

var roleOrder = []Role{RoleOrigin, RoleBody, RoleFace, RolePersonPhoto}

// Input is everything the resolver needs for one request.
type Input struct {
	Payload    *models.DetectionPayload
	Uploads    []models.Upload
	BaseURL    string
	ReceivedAt time.Time
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Images models.ResolvedImages
	// Attached lists every stored upload, whether or not it filled a role.
	Attached []models.AttachedFile
	// Fetched lists artifacts stored from the device side-channel.
	Fetched []string

	roles map[Role]*models.AttachedFile
}

type Resolver struct {
	store   storage.Store
	device  Fetcher
	newName func(receivedAt time.Time, original string) string
}

func NewResolver(store storage.Store, device Fetcher) *Resolver {
	return &Resolver{store: store, device: device, newName: StoredName}
}

// Resolve stores the uploads, assigns them to roles and fills the face and
// person-photo roles from the device when no upload covers them. A failed
// device fetch leaves the role nil; a failed store write is returned.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	res := &Resolution{roles: make(map[Role]*models.AttachedFile)}

	for _, up := range in.Uploads {
		name := r.newName(in.ReceivedAt, up.OriginalName)
		where, err := r.store.Put(ctx, name, up.Data, up.ContentType)
		if err != nil {
			r.Rollback(ctx, res)
			return nil, fmt.Errorf("%w: store upload %q: %w", ErrStorage, up.FieldName, err)
		}
		observability.StoredArtifacts.WithLabelValues("upload").Inc()
		res.Attached = append(res.Attached, models.AttachedFile{
			FieldName:    up.FieldName,
			OriginalName: up.OriginalName,
			StoredName:   name,
			SizeBytes:    int64(len(up.Data)),
			StoragePath:  where,
		})
	}
	r.assignRoles(res)

	for role, f := range res.roles {
		u := artifactURL(in.BaseURL, f.StoredName)
		res.setRole(role, &u)
	}

	if err := r.fetchMissing(ctx, in, res); err != nil {
		r.Rollback(ctx, res)
		return nil, err
	}
	return res, nil
}

// assignRoles matches files to roles by field name, canonical name before
// alias, then gives the face role the first file no other role took.
func (r *Resolver) assignRoles(res *Resolution) {
	claimed := make([]bool, len(res.Attached))
	for pass := 0; pass < 2; pass++ {
		for _, role := range roleOrder {
			if _, ok := res.roles[role]; ok {
				continue
			}
			fields := roleFields[role]
			if pass >= len(fields) {
				continue
			}
			for i := range res.Attached {
				if !claimed[i] && res.Attached[i].FieldName == fields[pass] {
					claimed[i] = true
					res.roles[role] = &res.Attached[i]
					break
				}
			}
		}
	}
	if _, ok := res.roles[RoleFace]; ok {
		return
	}
	for i := range res.Attached {
		if !claimed[i] {
			res.roles[RoleFace] = &res.Attached[i]
			return
		}
	}
}

type fetchJob struct {
	role Role
	ref  string
}

func (r *Resolver) fetchMissing(ctx context.Context, in Input, res *Resolution) error {
	p := in.Payload
	if r.device == nil || p == nil || p.Device.IP == nil || *p.Device.IP == "" {
		return nil
	}

	var jobs []fetchJob
	if res.Images.FacePic == nil && nonEmpty(p.Refs.FacePic) {
		jobs = append(jobs, fetchJob{RoleFace, *p.Refs.FacePic})
	}
	if res.Images.PersonPhoto == nil && nonEmpty(p.Refs.Photo) {
		jobs = append(jobs, fetchJob{RolePersonPhoto, *p.Refs.Photo})
	}
	if len(jobs) == 0 {
		return nil
	}

	type outcome struct {
		name string
		err  error
	}
	results := make([]outcome, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job fetchJob) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					results[i] = outcome{err: fmt.Errorf("%w: %v", errFetchPanic, p)}
				}
			}()
			name, err := r.fetchOne(ctx, *p.Device.IP, job.ref, in.ReceivedAt)
			results[i] = outcome{name, err}
		}(i, job)
	}
	wg.Wait()

	var storeErr error
	for i, job := range jobs {
		out := results[i]
		if out.err != nil {
			if errors.Is(out.err, ErrStorage) || errors.Is(out.err, errFetchPanic) {
				if storeErr == nil {
					storeErr = out.err
				}
				continue
			}
			slog.Warn("device fetch failed, image omitted",
				"role", job.role.String(), "ref", job.ref, "error", out.err)
			continue
		}
		res.Fetched = append(res.Fetched, out.name)
		u := artifactURL(in.BaseURL, out.name)
		res.setRole(job.role, &u)
	}
	return storeErr
}

func (r *Resolver) fetchOne(ctx context.Context, deviceIP, ref string, receivedAt time.Time) (string, error) {
	data, contentType, err := r.device.Fetch(ctx, deviceIP, ref)
	if err != nil {
		return "", err
	}

	original := path.Base(ref)
	if path.Ext(original) == "" || original == "." || original == "/" {
		original = strings.Trim(original, "./") + extFor(contentType)
	}
	name := r.newName(receivedAt, original)
	if _, err := r.store.Put(ctx, name, data, contentType); err != nil {
		return "", fmt.Errorf("%w: store device resource %q: %w", ErrStorage, ref, err)
	}
	observability.StoredArtifacts.WithLabelValues("device").Inc()
	return name, nil
}

// Discard deletes the origin and body uploads and clears those roles. Deletion
// is best effort: failures are logged and never returned.
func (r *Resolver) Discard(ctx context.Context, res *Resolution) {
	for _, role := range []Role{RoleOrigin, RoleBody} {
		f, ok := res.roles[role]
		if !ok {
			continue
		}
		if err := r.store.Delete(ctx, f.StoredName); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("discard unrecognized upload", "file", f.StoredName, "error", err)
		} else {
			observability.DiscardedArtifacts.Inc()
		}
		delete(res.roles, role)
		res.setRole(role, nil)
	}
}

// Rollback removes every artifact res stored. Missing files are skipped.
func (r *Resolver) Rollback(ctx context.Context, res *Resolution) {
	names := make([]string, 0, len(res.Attached)+len(res.Fetched))
	for _, f := range res.Attached {
		names = append(names, f.StoredName)
	}
	names = append(names, res.Fetched...)
	for _, name := range names {
		if err := r.store.Delete(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("rollback stored artifact", "file", name, "error", err)
		}
	}
}

func (res *Resolution) setRole(role Role, u *string) {
	switch role {
	case RoleOrigin:
		res.Images.OriginPic = u
	case RoleBody:
		res.Images.BodyPic = u
	case RoleFace:
		res.Images.FacePic = u
	case RolePersonPhoto:
		res.Images.PersonPhoto = u
	}
}

// File returns the stored upload that filled role, if any.
func (res *Resolution) File(role Role) (models.AttachedFile, bool) {
	f, ok := res.roles[role]
	if !ok {
		return models.AttachedFile{}, false
	}
	return *f, true
}

func (r Role) String() string {
	switch r {
	case RoleOrigin:
		return "origin"
	case RoleBody:
		return "body"
	case RoleFace:
		return "face"
	default:
		return "personPhoto"
	}
}

// StoredName builds a collision-free artifact name from the receipt time and
// the original file name.
func StoredName(receivedAt time.Time, original string) string {
	token := strconv.FormatInt(receivedAt.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
	return token + "-" + sanitize(original)
}

func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

func artifactURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + UploadsPath + url.PathEscape(name)
}

func extFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".jpg"
	}
	if mt == "image/jpeg" {
		return ".jpg"
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}

func nonEmpty(s *string) bool { return s != nil && *s != "" }
