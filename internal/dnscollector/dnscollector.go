// Package dnscollector implements the DNS Collector (spec.md §4.2):
// A/AAAA/MX/NS/TXT/CNAME plus _dmarc.<host> TXT, with a naive
// registrable-domain fallback for SPF/DMARC when the root host's own
// TXT records carry no v=spf1 entry.
package dnscollector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/reconscan/reconscan/internal/idgen"
	"github.com/reconscan/reconscan/internal/model"
)

// Collector issues DNS queries against the system's configured resolvers.
type Collector struct {
	client    *dns.Client
	servers   []string
	timeout   time.Duration
}

// New builds a Collector reading resolvers from /etc/resolv.conf,
// falling back to a public resolver if that file can't be read —
// mirroring the graceful-degradation posture the rest of this system
// applies to every collector.
func New(timeout time.Duration) *Collector {
	servers := []string{"8.8.8.8:53"}
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		servers = nil
		for _, s := range conf.Servers {
			servers = append(servers, fmt.Sprintf("%s:%s", s, conf.Port))
		}
	}
	return &Collector{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
		timeout: timeout,
	}
}

// Collect implements spec.md §4.2's algorithm for a target host.
func (c *Collector) Collect(ctx context.Context, targetID, host string) *model.DNSArtifact {
	start := time.Now()
	artifact := &model.DNSArtifact{
		DNSID:                   idgen.New(),
		TargetID:                targetID,
		Domain:                  host,
		RegistrableDomainMethod: model.RegistrableDomainNaive,
	}

	artifact.A = c.queryStrings(ctx, host, dns.TypeA, artifact)
	artifact.AAAA = c.queryStrings(ctx, host, dns.TypeAAAA, artifact)
	artifact.MX = c.queryStrings(ctx, host, dns.TypeMX, artifact)
	artifact.NS = c.queryStrings(ctx, host, dns.TypeNS, artifact)
	artifact.TXT = c.queryStrings(ctx, host, dns.TypeTXT, artifact)
	if cnames := c.queryStrings(ctx, host, dns.TypeCNAME, artifact); len(cnames) > 0 {
		artifact.CNAME = cnames[0]
	}

	dmarcName := "_dmarc." + host
	artifact.DMARC = c.queryStrings(ctx, dmarcName, dns.TypeTXT, artifact)
	artifact.DomainCheckedForEmailAuth = host

	if !hasSPF(artifact.TXT) {
		registrable := registrableDomain(host)
		if registrable != "" && registrable != host {
			fallbackTXT := c.queryStrings(ctx, registrable, dns.TypeTXT, artifact)
			fallbackDMARC := c.queryStrings(ctx, "_dmarc."+registrable, dns.TypeTXT, artifact)
			if len(fallbackTXT) > 0 || len(fallbackDMARC) > 0 {
				if len(fallbackTXT) > 0 {
					artifact.TXT = fallbackTXT
				}
				if len(fallbackDMARC) > 0 {
					artifact.DMARC = fallbackDMARC
				}
				artifact.DomainCheckedForEmailAuth = registrable
			}
		}
	}

	artifact.TimingsMs.Total = time.Since(start).Milliseconds()
	return artifact
}

// queryStrings issues one query of the given type and renders the
// answer section into plain strings, appending a warning on failure
// rather than aborting the whole collection (spec.md §4.2: "Each
// failing query appends a warning <TYPE>@<name> but does not abort
// collection").
func (c *Collector) queryStrings(ctx context.Context, name string, qtype uint16, artifact *model.DNSArtifact) []string {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range c.servers {
		reply, _, err := c.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("rcode %s", dns.RcodeToString[reply.Rcode])
			continue
		}
		return renderAnswers(reply.Answer, qtype)
	}

	if lastErr != nil {
		artifact.Warnings = append(artifact.Warnings, fmt.Sprintf("%s@%s", dns.TypeToString[qtype], name))
	}
	return nil
}

func renderAnswers(answers []dns.RR, qtype uint16) []string {
	var out []string
	for _, rr := range answers {
		switch qtype {
		case dns.TypeA:
			if a, ok := rr.(*dns.A); ok {
				out = append(out, a.A.String())
			}
		case dns.TypeAAAA:
			if a, ok := rr.(*dns.AAAA); ok {
				out = append(out, a.AAAA.String())
			}
		case dns.TypeMX:
			if mx, ok := rr.(*dns.MX); ok {
				out = append(out, strings.TrimSuffix(mx.Mx, "."))
			}
		case dns.TypeNS:
			if ns, ok := rr.(*dns.NS); ok {
				out = append(out, strings.TrimSuffix(ns.Ns, "."))
			}
		case dns.TypeTXT:
			if txt, ok := rr.(*dns.TXT); ok {
				out = append(out, strings.Join(txt.Txt, ""))
			}
		case dns.TypeCNAME:
			if cname, ok := rr.(*dns.CNAME); ok {
				out = append(out, strings.TrimSuffix(cname.Target, "."))
			}
		}
	}
	return out
}

func hasSPF(txt []string) bool {
	for _, t := range txt {
		if strings.HasPrefix(strings.ToLower(t), "v=spf1") {
			return true
		}
	}
	return false
}

// registrableDomain is the naive (last-two-labels) fallback scope,
// per spec.md §4.2/§9's explicit instruction not to introduce a Public
// Suffix List lookup in this spec.
func registrableDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
