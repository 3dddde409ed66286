package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/your-org/facehook/internal/observability"
)

// DefaultFetchTimeout bounds one side-channel fetch.
const DefaultFetchTimeout = 5 * time.Second

// Fetcher retrieves an image resource from the camera device.
type Fetcher interface {
	Fetch(ctx context.Context, deviceIP, ref string) ([]byte, string, error)
}

// FetchError is the typed outcome of a failed side-channel fetch.
type FetchError struct {
	URL     string
	Status  int // non-2xx status, 0 when no response arrived
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ResourceURL is where the device serves a resource reference.
func ResourceURL(deviceIP, ref string) string {
	u := url.URL{Scheme: "http", Host: deviceIP, Path: "/resource/" + ref}
	return u.String()
}

// DeviceClient fetches resources over plain HTTP with one bounded attempt.
type DeviceClient struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

func NewDeviceClient(timeout time.Duration, maxBytes int64) *DeviceClient {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &DeviceClient{
		client:   &http.Client{},
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

func (c *DeviceClient) Fetch(ctx context.Context, deviceIP, ref string) ([]byte, string, error) {
	target := ResourceURL(deviceIP, ref)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() { observability.DeviceFetchDuration.Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		observability.DeviceFetches.WithLabelValues("error").Inc()
		return nil, "", &FetchError{URL: target, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", c.failure(target, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		observability.DeviceFetches.WithLabelValues("status").Inc()
		return nil, "", &FetchError{URL: target, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, "", c.failure(target, 0, err)
	}
	if int64(len(data)) > c.maxBytes {
		observability.DeviceFetches.WithLabelValues("error").Inc()
		return nil, "", &FetchError{URL: target, Err: errors.New("resource exceeds size limit")}
	}
	if len(data) == 0 {
		observability.DeviceFetches.WithLabelValues("error").Inc()
		return nil, "", &FetchError{URL: target, Err: errors.New("empty resource")}
	}

	observability.DeviceFetches.WithLabelValues("ok").Inc()
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *DeviceClient) failure(target string, status int, err error) *FetchError {
	fe := &FetchError{URL: target, Status: status, Err: err}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		fe.Timeout = true
		observability.DeviceFetches.WithLabelValues("timeout").Inc()
	} else {
		observability.DeviceFetches.WithLabelValues("error").Inc()
	}
	return fe
}
