/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package network exposes the http_check capability used to diagnose
// endpoint reachability.
package network

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/capability"
)

var log = logf.Log.WithName("network-tools")

const (
	defaultTimeout = 10
	maxTimeout     = 60
	maxBodyBytes   = 64 << 10
	maxRedirects   = 10
)

// Classification of a check outcome shown to the model.
const (
	ResultOK              = "OK"
	ResultRedirect        = "REDIRECT"
	ResultClientError     = "CLIENT ERROR"
	ResultServerError     = "SERVER ERROR"
	ResultTimeout         = "TIMEOUT"
	ResultSSLError        = "SSL ERROR"
	ResultConnectionError = "CONNECTION ERROR"
)

var reportedHeaders = []string{"Content-Type", "Server", "X-Powered-By", "Content-Length", "Location", "Retry-After"}

// Checker probes HTTP endpoints.
type Checker struct {
	// base is cloned for every check so TLS verification and redirects can
	// be set per call.
	base    *http.Transport
	nowFunc func() time.Time
}

// New creates a Checker using the default transport settings.
func New() *Checker {
	return &Checker{
		base:    http.DefaultTransport.(*http.Transport).Clone(),
		nowFunc: time.Now,
	}
}

// CheckRequest describes one probe.
type CheckRequest struct {
	URL             string
	Method          string
	Timeout         time.Duration
	FollowRedirects bool
	VerifySSL       bool
}

// Check probes req.URL. Transport failures are classified into the returned
// report; only a malformed request is an error.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (string, error) {
	target, err := validateURL(req.URL)
	if err != nil {
		return "", err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout * time.Second
	}

	var chain []string
	transport := c.base.Clone()
	if !req.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicitly requested by the caller
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   req.Timeout,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if !req.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			chain = append(chain, r.URL.String())
			return nil
		},
	}
	defer httpClient.CloseIdleConnections()

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP Check: %s %s\n\n", method, target)

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", capability.ErrInvalidArguments, err)
	}
	httpReq.Header.Set("User-Agent", "kube-medic/http-check")

	start := c.nowFunc()
	resp, err := httpClient.Do(httpReq)
	elapsed := c.nowFunc().Sub(start)
	if err != nil {
		class := classifyError(err)
		log.V(1).Info("HTTP check failed", "url", target.String(), "class", class, "error", err.Error())
		fmt.Fprintf(&b, "Result: %s - %s\n", class, describeError(class, err, req.Timeout))
		if class == ResultSSLError && req.VerifySSL {
			b.WriteString("\nTip: retry with verify_ssl=false to see the response despite the certificate problem.\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
	defer func() { _ = resp.Body.Close() }()

	fmt.Fprintf(&b, "Status: %s\n", resp.Status)
	fmt.Fprintf(&b, "Response Time: %dms\n", elapsed.Milliseconds())
	if len(chain) > 0 {
		fmt.Fprintf(&b, "Redirects: %d (%s)\n", len(chain), strings.Join(chain, " -> "))
		fmt.Fprintf(&b, "Final URL: %s\n", resp.Request.URL)
	}
	if resp.TLS != nil {
		writeTLS(&b, resp.TLS, c.nowFunc())
	}

	b.WriteString("\nHeaders:\n")
	for _, h := range reportedHeaders {
		if v := resp.Header.Get(h); v != "" {
			fmt.Fprintf(&b, "  %s: %s\n", strings.ToLower(h), v)
		}
	}

	if title := pageTitle(resp); title != "" {
		fmt.Fprintf(&b, "\nPage title: %s\n", title)
	}

	class := classifyStatus(resp.StatusCode)
	fmt.Fprintf(&b, "\nResult: %s", class)
	switch class {
	case ResultOK:
		b.WriteString(" - Endpoint is accessible")
	case ResultRedirect:
		b.WriteString(" - Endpoint redirects")
	default:
		fmt.Fprintf(&b, " - %d", resp.StatusCode)
	}
	log.V(1).Info("HTTP check completed", "url", target.String(), "status", resp.StatusCode, "elapsed", elapsed)
	return b.String(), nil
}

func validateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: url: %v", capability.ErrInvalidArguments, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: url must use http or https, got %q", capability.ErrInvalidArguments, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: url has no host: %q", capability.ErrInvalidArguments, raw)
	}
	return u, nil
}

func classifyStatus(code int) string {
	switch {
	case code >= 500:
		return ResultServerError
	case code >= 400:
		return ResultClientError
	case code >= 300:
		return ResultRedirect
	default:
		return ResultOK
	}
}

func classifyError(err error) string {
	var (
		netErr       net.Error
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		recordHdrErr tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr), errors.As(err, &recordHdrErr):
		return ResultSSLError
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ResultTimeout
	default:
		return ResultConnectionError
	}
}

func describeError(class string, err error, timeout time.Duration) string {
	switch class {
	case ResultTimeout:
		return fmt.Sprintf("Request timed out after %s", timeout)
	case ResultConnectionError:
		return fmt.Sprintf("Could not connect to host\n\nDetails: %v", err)
	default:
		return err.Error()
	}
}

func writeTLS(b *strings.Builder, state *tls.ConnectionState, now time.Time) {
	fmt.Fprintf(b, "TLS: %s", tls.VersionName(state.Version))
	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		days := int(cert.NotAfter.Sub(now).Hours() / 24)
		fmt.Fprintf(b, ", certificate %s expires %s (%d days)", cert.Subject.CommonName, cert.NotAfter.UTC().Format(time.DateOnly), days)
	}
	b.WriteString("\n")
}

// pageTitle returns the <title> of an HTML response. Error pages from
// proxies and ingress controllers usually name themselves there.
func pageTitle(resp *http.Response) string {
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

// Capabilities returns the http_check capability backed by c.
func (c *Checker) Capabilities() []capability.Descriptor {
	return []capability.Descriptor{{
		Name: "http_check",
		Description: "Check whether an HTTP or HTTPS endpoint is reachable. Reports status code, response time, " +
			"redirects, TLS certificate and a classification (OK, REDIRECT, CLIENT ERROR, SERVER ERROR, TIMEOUT, SSL ERROR, CONNECTION ERROR).",
		Params: []capability.Param{
			{Name: "url", Type: capability.String, Required: true, Description: "URL to check, such as https://api.example.com/health"},
			{Name: "method", Type: capability.String, Default: http.MethodGet, Enum: []string{http.MethodGet, http.MethodHead, http.MethodOptions}},
			{Name: "timeout", Type: capability.Integer, Default: defaultTimeout, Description: "Timeout in seconds"},
			{Name: "follow_redirects", Type: capability.Boolean, Default: true},
			{Name: "verify_ssl", Type: capability.Boolean, Default: true},
		},
		Invoke: func(ctx context.Context, args capability.Args) (string, error) {
			timeout := min(max(args.Int("timeout"), 1), maxTimeout)
			return c.Check(ctx, CheckRequest{
				URL:             args.String("url"),
				Method:          args.String("method"),
				Timeout:         time.Duration(timeout) * time.Second,
				FollowRedirects: args.Bool("follow_redirects"),
				VerifySSL:       args.Bool("verify_ssl"),
			})
		},
	}}
}
