package upload

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/transport"
)

const (
	defaultHTTPPort       = "80"
	defaultUploadEndpoint = "/upload"
	httpUploadTimeout     = 2 * time.Minute
)

// HTTPUploader posts the artifact to a network board's upload endpoint.
type HTTPUploader struct {
	base
	client *http.Client
}

// NewHTTPUploader returns an uploader that reserves ports in registry.
// registry may be nil.
func NewHTTPUploader(registry *transport.Registry) *HTTPUploader {
	return &HTTPUploader{
		base:   base{registry: registry},
		client: &http.Client{Timeout: httpUploadTimeout},
	}
}

// Upload implements Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, release, err := u.prepare(req, true)
	defer release()
	if err != nil {
		return res, err
	}
	if transport.Classify(req.Port) != transport.Network {
		return res, errors.WithMessagef(ErrConfigurationIncomplete, "%s is not a network port", req.Port)
	}

	prefs := req.Preferences
	port := prefs.Get("upload.network.port")
	if port == "" {
		port = defaultHTTPPort
	}
	baseURL := "http://" + net.JoinHostPort(transport.Address(req.Port), port)
	logger := log.WithField("port", req.Port)

	if reset := prefs.Get("upload.network.endpoint_reset"); reset != "" {
		logger.Info("resetting board over http")
		body, status, err := u.post(ctx, baseURL+reset, nil, 0)
		if err != nil || !success(status) {
			res.Output = body
			res.Duration = time.Since(start)
			return res, transferError(status, body, err)
		}
	}

	endpoint := prefs.Get("upload.network.endpoint_upload")
	if endpoint == "" {
		endpoint = defaultUploadEndpoint
	}

	f, err := os.Open(req.Artifact)
	if err != nil {
		return res, errors.Wrap(err, "reading artifact")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return res, errors.Wrap(err, "reading artifact")
	}

	var payload io.Reader = f
	if req.Progress != nil {
		payload = io.TeeReader(f, req.Progress)
	}
	logger.Infof("uploading %d bytes to %s", info.Size(), baseURL+endpoint)
	body, status, err := u.post(ctx, baseURL+endpoint, payload, info.Size())
	res.Output = body
	res.Duration = time.Since(start)
	if req.Output != nil && body != "" {
		io.WriteString(req.Output, body)
	}
	if err != nil || !success(status) {
		return res, transferError(status, body, err)
	}
	res.Success = true
	return res, nil
}

func (u *HTTPUploader) post(ctx context.Context, url string, payload io.Reader, length int64) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return "", 0, err
	}
	if payload != nil {
		httpReq.ContentLength = length
		httpReq.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := u.client.Do(httpReq)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return string(body), resp.StatusCode, err
}

func success(status int) bool { return status >= 200 && status < 300 }

func transferError(status int, body string, err error) error {
	if err == nil {
		err = errors.Errorf("board answered %s", http.StatusText(status))
	}
	return &TransferFailedError{ExitCode: status, Diagnostics: body, Err: err}
}
