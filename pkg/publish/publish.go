package publish

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/model"
	"github.com/blingblang/atlas-fluvial/pkg/request"
)

var (
	// ErrUnauthorized indicates invalid or expired store credentials.
	// Fatal for the run; never retried within the same attempt.
	ErrUnauthorized = errors.New("artifact store rejected credentials")

	// ErrTransient indicates a network or 5xx-class failure.
	ErrTransient = errors.New("artifact store transiently unavailable")
)

// Publisher uploads finished documents to the remote content store via
// its deploy API and returns the public URL. It never deletes previous
// artifacts; unique filenames keep old publishes resolvable.
type Publisher struct {
	client      *request.Client
	apiBase     string
	siteID      string
	token       string
	maxAttempts int
	backoff     request.Backoff
}

// New creates a Publisher.
func New(client *request.Client, pubCfg *config.PublishConfig, reqCfg *config.RequestConfig, creds config.Credentials) *Publisher {
	return &Publisher{
		client:      client,
		apiBase:     pubCfg.APIBase,
		siteID:      creds.SiteID,
		token:       creds.AccessToken,
		maxAttempts: reqCfg.Retries,
		backoff: request.Backoff{
			BaseDelay: time.Duration(reqCfg.Backoff.BaseDelay),
			MaxDelay:  time.Duration(reqCfg.Backoff.MaxDelay),
		},
	}
}

// Upload publishes the document under the given filename. Transient
// failures are retried with backoff up to the attempt ceiling; the
// attempt count is returned alongside the result or error.
func (p *Publisher) Upload(ctx context.Context, filename string, pdf []byte) (*model.PublishedArtifact, int, error) {
	for attempt := 1; ; attempt++ {
		artifact, err := p.publishOnce(ctx, filename, pdf)
		if err == nil {
			return artifact, attempt, nil
		}

		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		var se *request.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return nil, attempt, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}

		if !request.IsTransient(err) {
			return nil, attempt, err
		}

		if attempt >= p.maxAttempts {
			return nil, attempt, fmt.Errorf("%w after %d attempts: %v", ErrTransient, attempt, err)
		}

		slog.Warn("Publish attempt failed, retrying", "attempt", attempt, "error", err)
		if serr := p.backoff.Sleep(ctx, attempt); serr != nil {
			return nil, attempt, serr
		}
	}
}

type deployResponse struct {
	ID string `json:"id"`
}

type siteResponse struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
}

// publishOnce walks the store's deploy flow: announce the file digest,
// upload the bytes, then resolve the site's public hostname.
func (p *Publisher) publishOnce(ctx context.Context, filename string, pdf []byte) (*model.PublishedArtifact, error) {
	digest := sha1.Sum(pdf)

	deployReq, err := json.Marshal(map[string]any{
		"files": map[string]string{
			"/" + filename: hex.EncodeToString(digest[:]),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode deploy request: %w", err)
	}

	data, err := p.client.Post(ctx, p.apiBase+"/sites/"+p.siteID+"/deploys", deployReq, map[string]string{
		"Authorization": "Bearer " + p.token,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("create deploy: %w", err)
	}

	var deploy deployResponse
	if err := json.Unmarshal(data, &deploy); err != nil {
		return nil, fmt.Errorf("failed to parse deploy response: %w", err)
	}
	if deploy.ID == "" {
		return nil, errors.New("deploy response carried no id")
	}

	if _, err := p.client.Put(ctx, p.apiBase+"/deploys/"+deploy.ID+"/files/"+url.PathEscape(filename), pdf, map[string]string{
		"Authorization": "Bearer " + p.token,
		"Content-Type":  "application/octet-stream",
	}); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	data, err = p.client.Get(ctx, p.apiBase+"/sites/"+p.siteID, map[string]string{
		"Authorization": "Bearer " + p.token,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve site: %w", err)
	}

	var site siteResponse
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to parse site response: %w", err)
	}
	name := site.Name
	if name == "" {
		name = site.Subdomain
	}
	if name == "" {
		return nil, errors.New("site response carried no name")
	}

	return &model.PublishedArtifact{
		URL:         fmt.Sprintf("https://%s.netlify.app/%s", name, filename),
		Filename:    filename,
		SizeBytes:   int64(len(pdf)),
		PublishedAt: time.Now().UTC(),
	}, nil
}
