package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/docbind-trust-core/interfaces"
)

// Factory creates artifact backends from location URIs and aggregates them
// into multi-backend configurations for redundant storage.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a backend factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates an artifact backend from a location URI. The URI format
// is [scheme]://[auth@]host[:port][/path][?params]; see the package
// documentation for supported schemes.
func (f *Factory) BackendFor(location interfaces.StorageBackendLocation) (interfaces.ArtifactBackend, error) {
	u, err := url.Parse(string(location))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "ipfs":
		return f.createIPFSBackend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("unsupported backend scheme: %s", u.Scheme)
	}
}

// CreateMultiBackend creates a multi-backend from a list of location URIs.
// Locations that fail to produce a backend are skipped with a warning;
// an error is returned only when no backend could be created at all.
func (f *Factory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.ArtifactBackend, error) {
	backends := make([]interfaces.ArtifactBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := f.BackendFor(location)
		if err != nil {
			f.log.Warn("Failed to create artifact backend",
				slog.String("location", location.String()),
				"err", err)
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid artifact backends created")
	}

	return NewMultiBackend(backends, f.log), nil
}

// URI format: file:///absolute/path
func (f *Factory) createFileBackend(u *url.URL) (interfaces.ArtifactBackend, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", u.String())
	}

	return NewFileBackend(path, f.log)
}

// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket/path/?region=us-west-2&endpoint=custom.s3.com
func (f *Factory) createS3Backend(u *url.URL) (interfaces.ArtifactBackend, error) {
	bucketName := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// URI format: ipfs://host:port/?timeout=30s
func (f *Factory) createIPFSBackend(u *url.URL) (interfaces.ArtifactBackend, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001"
	}

	timeout := u.Query().Get("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSBackend(host, port, timeout, f.log)
}

// URI format: vault://host:port/mount/path?token=...&scheme=https
func (f *Factory) createVaultBackend(u *url.URL) (interfaces.ArtifactBackend, error) {
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return nil, fmt.Errorf("invalid Vault URI, expected vault://host:port/mount/path")
	}

	mountPath := parts[0]
	dataPath := ""
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	query := u.Query()
	scheme := query.Get("scheme")
	if scheme == "" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	return NewVaultBackend(address, mountPath, dataPath, query.Get("token"), f.log)
}
