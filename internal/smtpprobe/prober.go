// Package smtpprobe verifies mailbox existence by speaking directly to a
// domain's mail exchanger. The probe issues an unauthenticated
// MAIL FROM / RCPT TO handshake and never sends message data.
package smtpprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"time"
)

// Outcome is the probe verdict for one address.
type Outcome int

const (
	// Deliverable means the exchanger accepted the recipient.
	Deliverable Outcome = iota
	// Undeliverable means the exchanger definitively rejected the recipient.
	Undeliverable
	// Greylisted means the exchanger deferred with a temporary code.
	// Treated as deliverable; deferral is not proof of non-existence.
	Greylisted
	// Inconclusive means the probe could not complete (timeout, connect
	// failure). Never conflated with a definitive rejection.
	Inconclusive
	// NoMX means the domain has no mail exchanger at all.
	NoMX
)

func (o Outcome) String() string {
	switch o {
	case Deliverable:
		return "deliverable"
	case Undeliverable:
		return "undeliverable"
	case Greylisted:
		return "greylisted"
	case Inconclusive:
		return "inconclusive"
	case NoMX:
		return "no_mx"
	}
	return "unknown"
}

// Result is the full probe outcome for one address.
type Result struct {
	Address string
	Outcome Outcome
	Code    int
	Host    string
	Detail  string
}

// Valid reports whether the outcome counts as valid under the optimistic
// policy: accepted, deferred, and inconclusive probes all pass; only a
// definitive rejection or a missing exchanger fails.
func (r Result) Valid() bool {
	switch r.Outcome {
	case Deliverable, Greylisted, Inconclusive:
		return true
	}
	return false
}

// Prober runs recipient-verification handshakes against mail exchangers.
type Prober struct {
	Port       int
	Timeout    time.Duration
	HeloDomain string
	From       string

	// resolveMX is swappable for tests. Defaults to net.DefaultResolver.
	resolveMX func(ctx context.Context, domain string) ([]*net.MX, error)
	// dial is swappable for tests pointing at a local listener.
	dial func(ctx context.Context, host string, port int) (net.Conn, error)
}

// New creates a prober with the given connection settings.
func New(port int, timeout time.Duration, heloDomain, from string) *Prober {
	p := &Prober{
		Port:       port,
		Timeout:    timeout,
		HeloDomain: heloDomain,
		From:       from,
	}
	p.resolveMX = func(ctx context.Context, domain string) ([]*net.MX, error) {
		return net.DefaultResolver.LookupMX(ctx, domain)
	}
	p.dial = func(ctx context.Context, host string, port int) (net.Conn, error) {
		d := net.Dialer{Timeout: p.Timeout}
		return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	}
	return p
}

// SetResolver overrides MX resolution. For tests.
func (p *Prober) SetResolver(fn func(ctx context.Context, domain string) ([]*net.MX, error)) {
	p.resolveMX = fn
}

// SetDialer overrides the TCP dial. For tests.
func (p *Prober) SetDialer(fn func(ctx context.Context, host string, port int) (net.Conn, error)) {
	p.dial = fn
}

// HasMX reports whether the domain publishes at least one mail exchanger.
func (p *Prober) HasMX(ctx context.Context, domain string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	records, err := p.resolveMX(ctx, domain)
	return err == nil && len(records) > 0
}

// Probe verifies one address against its domain's best-preference exchanger.
func (p *Prober) Probe(ctx context.Context, address, domain string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	records, err := p.resolveMX(ctx, domain)
	if err != nil {
		if isTimeout(err) {
			return Result{Address: address, Outcome: Inconclusive, Detail: "mx lookup timeout"}
		}
		return Result{Address: address, Outcome: NoMX, Detail: err.Error()}
	}
	if len(records) == 0 {
		return Result{Address: address, Outcome: NoMX, Detail: "no mx records"}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
	host := trimDot(records[0].Host)

	conn, err := p.dial(ctx, host, p.Port)
	if err != nil {
		return Result{Address: address, Outcome: Inconclusive, Host: host, Detail: err.Error()}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(p.Timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return classifyErr(address, host, err)
	}
	defer client.Close()

	if err := client.Hello(p.HeloDomain); err != nil {
		return classifyErr(address, host, err)
	}
	if err := client.Mail(p.From); err != nil {
		return classifyErr(address, host, err)
	}
	if err := client.Rcpt(address); err != nil {
		return classifyErr(address, host, err)
	}
	client.Quit()
	return Result{Address: address, Outcome: Deliverable, Code: 250, Host: host}
}

// classifyErr maps an SMTP protocol error onto a probe outcome.
// 550/551/553 are definitive mailbox rejections; 4xx is greylisting or
// temporary load shedding; anything else (timeouts, resets) is inconclusive.
func classifyErr(address, host string, err error) Result {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 550 || tpErr.Code == 551 || tpErr.Code == 553:
			return Result{Address: address, Outcome: Undeliverable, Code: tpErr.Code, Host: host, Detail: tpErr.Msg}
		case tpErr.Code >= 400 && tpErr.Code < 500:
			return Result{Address: address, Outcome: Greylisted, Code: tpErr.Code, Host: host, Detail: tpErr.Msg}
		case tpErr.Code >= 500:
			return Result{Address: address, Outcome: Undeliverable, Code: tpErr.Code, Host: host, Detail: tpErr.Msg}
		}
	}
	if isTimeout(err) {
		return Result{Address: address, Outcome: Inconclusive, Host: host, Detail: "probe timeout"}
	}
	return Result{Address: address, Outcome: Inconclusive, Host: host, Detail: err.Error()}
}

func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}

func trimDot(host string) string {
	if len(host) > 0 && host[len(host)-1] == '.' {
		return host[:len(host)-1]
	}
	return host
}
