// Package discover locates POP3 servers with DNS SRV records, as described
// in RFC 6186.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	// ErrNotFound is returned when the domain publishes no POP3 SRV record.
	ErrNotFound = errors.New("discover: no POP3 service found")
	// ErrNotAvailable is returned when the domain explicitly declares the
	// service unavailable with a "." target.
	ErrNotAvailable = errors.New("discover: POP3 service not available")
)

// Service is a POP3 server found in DNS.
type Service struct {
	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
	// TLS is set for _pop3s records: the connection starts with a TLS
	// handshake. Otherwise STARTTLS is expected.
	TLS bool
}

// Address returns the host:port address of the service.
func (s *Service) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

// Resolver looks up SRV records.
type Resolver struct {
	// Nameservers lists the servers to query, as host:port. If empty, the
	// servers of /etc/resolv.conf are used.
	Nameservers []string
	// Timeout is the per-query timeout. Defaults to 5 seconds.
	Timeout time.Duration
}

// NewResolver creates a resolver querying the provided name servers.
func NewResolver(nameservers ...string) *Resolver {
	if len(nameservers) == 0 {
		nameservers = systemNameservers()
	}
	return &Resolver{Nameservers: nameservers}
}

func systemNameservers() []string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return []string{"127.0.0.1:53"}
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

// LookupPOP3 returns the POP3 services of a domain, best first.
//
// Both _pop3s._tcp and _pop3._tcp are queried. Records are ordered by
// priority, then by decreasing weight; at equal rank implicit TLS comes
// first.
func (r *Resolver) LookupPOP3(ctx context.Context, domain string) ([]Service, error) {
	var (
		services []Service
		declined bool
	)
	for _, svc := range []struct {
		name string
		tls  bool
	}{
		{"_pop3s._tcp.", true},
		{"_pop3._tcp.", false},
	} {
		records, err := r.lookupSRV(ctx, svc.name+dns.Fqdn(domain))
		if err != nil {
			return nil, err
		}
		for _, rr := range records {
			if rr.Target == "." {
				declined = true
				continue
			}
			services = append(services, Service{
				Host:     strings.TrimSuffix(rr.Target, "."),
				Port:     rr.Port,
				Priority: rr.Priority,
				Weight:   rr.Weight,
				TLS:      svc.tls,
			})
		}
	}

	if len(services) == 0 {
		if declined {
			return nil, ErrNotAvailable
		}
		return nil, ErrNotFound
	}

	slices.SortStableFunc(services, func(a, b Service) int {
		if a.Priority != b.Priority {
			return int(a.Priority) - int(b.Priority)
		}
		return int(b.Weight) - int(a.Weight)
	})
	return services, nil
}

// LookupPOP3Best returns the best POP3 service of a domain.
func (r *Resolver) LookupPOP3Best(ctx context.Context, domain string) (*Service, error) {
	services, err := r.LookupPOP3(ctx, domain)
	if err != nil {
		return nil, err
	}
	return &services[0], nil
}

// lookupSRV queries each name server in turn. A missing name is not an
// error.
func (r *Resolver) lookupSRV(ctx context.Context, name string) ([]*dns.SRV, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	client := &dns.Client{Timeout: timeout}

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeSRV)
	m.RecursionDesired = true

	lastErr := errors.New("discover: no name server configured")
	for _, server := range r.Nameservers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, _, err := client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = fmt.Errorf("discover: query %v: %w", name, err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			var records []*dns.SRV
			for _, rr := range resp.Answer {
				if srv, ok := rr.(*dns.SRV); ok {
					records = append(records, srv)
				}
			}
			return records, nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("discover: query %v: %v", name, dns.RcodeToString[resp.Rcode])
		}
	}
	return nil, lastErr
}
