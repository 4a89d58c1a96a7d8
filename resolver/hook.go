// Package resolver dispatches document lifecycle notifications to resolver
// components. The primary resolver blocks the enclosing operation; additional
// resolvers run best-effort after it.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/miekg/dns"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// Invocation describes one document lifecycle change delivered to a resolver.
type Invocation struct {
	Operation   string                 `json:"operation"`
	DocumentID  interfaces.DocumentID  `json:"document_id"`
	ContentHash interfaces.ContentHash `json:"content_hash"`
	Actor       interfaces.Identity    `json:"actor"`
	Fields      map[string]string      `json:"fields,omitempty"`
}

// Hook is the notification surface a bound resolver exposes.
type Hook interface {
	OnDocumentEvent(ctx context.Context, inv Invocation) error
}

// HookBinder turns a resolved component record into a live hook.
type HookBinder interface {
	Bind(record *interfaces.ComponentRecord) (Hook, error)
}

// HTTPResolver delivers invocations to a remote resolver over HTTP.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
}

// NewHTTPResolver creates a resolver posting to endpoint. A nil client uses
// http.DefaultClient; invocation deadlines come from the caller's context.
func NewHTTPResolver(endpoint string, client *http.Client) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResolver{endpoint: strings.TrimSuffix(endpoint, "/"), client: client}
}

// OnDocumentEvent posts the invocation as JSON. Any non-2xx response is a
// failure.
func (r *HTTPResolver) OnDocumentEvent(ctx context.Context, inv Invocation) error {
	body, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/resolver/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resolver endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("resolver returned status %d", resp.StatusCode)
	}
	return nil
}

// EndpointBinder binds components by their registered endpoint. Supported
// schemes: http, https, and dns+http / dns+https where the host is resolved
// through a DNS SRV lookup first.
type EndpointBinder struct {
	// Client is used for all bound resolvers. Nil means http.DefaultClient.
	Client *http.Client

	// DNSServer answers SRV queries for dns+http endpoints. Empty means the
	// local systemd resolver.
	DNSServer string
}

// Bind creates an HTTP hook for the record's endpoint.
func (b *EndpointBinder) Bind(record *interfaces.ComponentRecord) (Hook, error) {
	endpoint := record.Ref.Endpoint
	if endpoint == "" {
		return nil, fmt.Errorf("component %s has no endpoint", record.ID)
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return NewHTTPResolver(endpoint, b.Client), nil
	case "dns+http", "dns+https":
		target, err := b.resolveSRV(parsed.Hostname())
		if err != nil {
			return nil, fmt.Errorf("SRV lookup for %q failed: %w", parsed.Hostname(), err)
		}
		parsed.Scheme = strings.TrimPrefix(parsed.Scheme, "dns+")
		if port := parsed.Port(); port != "" {
			parsed.Host = target + ":" + port
		} else {
			parsed.Host = target
		}
		return NewHTTPResolver(parsed.String(), b.Client), nil
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}
}

// resolveSRV returns the first SRV target for the domain.
func (b *EndpointBinder) resolveSRV(domain string) (string, error) {
	server := b.DNSServer
	if server == "" {
		server = "127.0.0.53:53"
	}

	m1 := new(dns.Msg)
	m1.Id = dns.Id()
	m1.RecursionDesired = true
	m1.Question = []dns.Question{{Name: dns.Fqdn(domain), Qtype: dns.TypeSRV, Qclass: dns.ClassINET}}

	c := new(dns.Client)
	in, _, err := c.Exchange(m1, server)
	if err != nil {
		return "", err
	}

	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			return strings.TrimSuffix(srv.Target, "."), nil
		}
	}
	return "", fmt.Errorf("no SRV records for %s", domain)
}

// StaticBinder binds fixed in-process hooks. Used in tests and for bundled
// resolvers.
type StaticBinder struct {
	Hooks map[interfaces.ComponentID]Hook
}

// Bind returns the hook registered for the component id.
func (b *StaticBinder) Bind(record *interfaces.ComponentRecord) (Hook, error) {
	hook, ok := b.Hooks[record.ID]
	if !ok {
		return nil, fmt.Errorf("no hook bound for component %s", record.ID)
	}
	return hook, nil
}
