package dns

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"edgegate/pkg/config"

	"github.com/miekg/dns"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ReasonTokenNotFound is the semantic reason recorded when the resolver
// answered but no TXT value matched the expected token.
const ReasonTokenNotFound = "TXT token not found"

// Result is the outcome of a completed TXT check. A transport or protocol
// failure is returned as an error instead, never as Matched=false.
type Result struct {
	Matched     bool      `json:"matched"`
	TokensFound []string  `json:"tokensFound"`
	CheckedAt   time.Time `json:"checkedAt"`
	Reason      string    `json:"reason,omitempty"`
}

// Verifier proves domain ownership by querying a public DNS-over-HTTPS
// resolver for a TXT record carrying the expected verification token.
type Verifier struct {
	resolver     string
	timeout      time.Duration
	recordPrefix string
	client       *http.Client
}

var Module = fx.Module("dns", fx.Provide(NewVerifier))

func NewVerifier(cfg *config.Config) *Verifier {
	d := cfg.Gateway.DNS
	return &Verifier{
		resolver:     d.Resolver,
		timeout:      d.Timeout,
		recordPrefix: d.RecordPrefix,
		client:       &http.Client{},
	}
}

// NewVerifierWith builds a verifier against an explicit resolver endpoint.
// Used by tests and callers that do not carry the full config.
func NewVerifierWith(resolver string, timeout time.Duration, recordPrefix string) *Verifier {
	return &Verifier{
		resolver:     resolver,
		timeout:      timeout,
		recordPrefix: recordPrefix,
		client:       &http.Client{},
	}
}

// VerifyTXT checks whether the TXT record at {prefix}.{hostname} contains
// expectedToken exactly. The query is aborted at the configured timeout; no
// retries happen here, retry policy belongs to the caller.
func (v *Verifier) VerifyTXT(ctx context.Context, hostname, expectedToken string) (*Result, error) {
	if strings.TrimSpace(hostname) == "" {
		return nil, fmt.Errorf("hostname cannot be empty")
	}

	if strings.TrimSpace(expectedToken) == "" {
		return nil, fmt.Errorf("expectedToken cannot be empty")
	}

	name := hostname
	if v.recordPrefix != "" {
		name = v.recordPrefix + "." + hostname
	}
	fqdn := dns.Fqdn(name)
	zap.L().Debug("Verifying DNS TXT record", zap.String("name", fqdn), zap.String("resolver", v.resolver))

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	reply, err := v.exchange(ctx, fqdn)
	if err != nil {
		return nil, err
	}

	// SERVFAIL is a resolver-side failure, not an answer about the record.
	if reply.Rcode == dns.RcodeServerFailure {
		return nil, fmt.Errorf("doh resolver answered SERVFAIL for %s", fqdn)
	}

	result := &Result{
		TokensFound: make([]string, 0, len(reply.Answer)),
		CheckedAt:   time.Now().UTC(),
	}

	for _, ans := range reply.Answer {
		txt, ok := ans.(*dns.TXT)
		if !ok {
			continue
		}
		for _, record := range txt.Txt {
			value := strings.TrimSpace(strings.Trim(record, `"`))
			result.TokensFound = append(result.TokensFound, value)
			if value == expectedToken {
				result.Matched = true
			}
		}
	}

	if !result.Matched {
		result.Reason = ReasonTokenNotFound
		zap.L().Warn("DNS TXT verification mismatch",
			zap.String("hostname", hostname),
			zap.Strings("tokens_found", result.TokensFound),
		)
		return result, nil
	}

	zap.L().Info("DNS TXT verification success", zap.String("hostname", hostname))
	return result, nil
}

// exchange sends the packed TXT query to the DoH resolver (RFC 8484 POST).
func (v *Verifier) exchange(ctx context.Context, fqdn string) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, dns.TypeTXT)
	msg.RecursionDesired = true

	packed, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack dns query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.resolver, bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("build doh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doh query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh resolver returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read doh response: %w", err)
	}

	reply := new(dns.Msg)
	if err := reply.Unpack(body); err != nil {
		return nil, fmt.Errorf("unpack doh response: %w", err)
	}

	return reply, nil
}
