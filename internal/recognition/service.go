package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/facehook/internal/images"
	"github.com/your-org/facehook/internal/models"
	"github.com/your-org/facehook/internal/observability"
	"github.com/your-org/facehook/internal/payload"
)

const publishTimeout = 5 * time.Second

// Publisher receives every record after it became the latest one.
type Publisher interface {
	PublishRecognition(ctx context.Context, rec models.RecognitionRecord) error
}

// Ack is what the device gets back for an accepted event.
type Ack struct {
	Recognized bool
	Name       *string
}

type ServiceConfig struct {
	Decoder   *payload.Decoder
	Resolver  *images.Resolver
	Latest    *LatestStore
	Publisher Publisher // optional
	// DiscardUnrecognized deletes origin and body uploads of events without
	// a person match.
	DiscardUnrecognized bool
}

// Service runs one inbound detection request through decoding, image
// resolution and record building, then makes it the latest record.
type Service struct {
	decoder   *payload.Decoder
	resolver  *images.Resolver
	latest    *LatestStore
	publisher Publisher
	discard   bool
	now       func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	dec := cfg.Decoder
	if dec == nil {
		dec = payload.NewDecoder(0)
	}
	return &Service{
		decoder:   dec,
		resolver:  cfg.Resolver,
		latest:    cfg.Latest,
		publisher: cfg.Publisher,
		discard:   cfg.DiscardUnrecognized,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Latest() models.RecognitionRecord {
	return s.latest.Get()
}

// Ingest handles one request. On any error the latest record is left as it
// was. Decode failures come back as *payload.DecodeError.
func (s *Service) Ingest(ctx context.Context, r *http.Request, baseURL string) (ack Ack, err error) {
	// res is set once images are stored; committed once the record is live.
	var res *images.Resolution
	committed := false
	defer func() {
		if p := recover(); p != nil {
			slog.Error("ingest panic", "panic", p)
			observability.IngestsTotal.WithLabelValues("error").Inc()
			if res != nil && !committed {
				s.resolver.Rollback(context.WithoutCancel(ctx), res)
			}
			ack, err = Ack{}, fmt.Errorf("ingest: %v", p)
		}
	}()

	receivedAt := s.now()

	decoded, err := s.decoder.Decode(r)
	if err != nil {
		observability.IngestsTotal.WithLabelValues("bad_request").Inc()
		return Ack{}, err
	}
	p := &decoded.Payload
	slog.Info("detection received",
		"body", decoded.Kind.String(),
		"envelope", decoded.Envelope,
		"files", len(decoded.Uploads),
		"fields", len(p.Raw),
	)

	res, err = s.resolver.Resolve(ctx, images.Input{
		Payload:    p,
		Uploads:    decoded.Uploads,
		BaseURL:    baseURL,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		observability.IngestsTotal.WithLabelValues("error").Inc()
		return Ack{}, fmt.Errorf("resolve images: %w", err)
	}
	for _, f := range res.Attached {
		slog.Info("file attached",
			"field", f.FieldName,
			"original", f.OriginalName,
			"stored", f.StoredName,
			"size", f.SizeBytes,
		)
	}
	for _, name := range res.Fetched {
		slog.Info("device image stored", "stored", name)
	}

	recognized := IsRecognized(p)
	if !recognized && s.discard {
		s.resolver.Discard(ctx, res)
	}

	rec := Build(p, res.Images, receivedAt)
	s.latest.Set(rec)
	committed = true

	if recognized {
		observability.IngestsTotal.WithLabelValues("recognized").Inc()
		slog.Info("person recognized", "name", *p.Name, "person_id", *p.PersonID)
		ack = Ack{Recognized: true, Name: p.Name}
	} else {
		observability.IngestsTotal.WithLabelValues("unrecognized").Inc()
		slog.Info("no person match", "device_ip", deref(p.Device.IP))
	}

	if s.publisher != nil {
		go s.publish(rec)
	}
	return ack, nil
}

func (s *Service) publish(rec models.RecognitionRecord) {
	defer func() {
		if p := recover(); p != nil {
			observability.PublishFailures.Inc()
			slog.Error("publish recognition panic", "panic", p)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishRecognition(ctx, rec); err != nil {
		observability.PublishFailures.Inc()
		slog.Warn("publish recognition", "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
