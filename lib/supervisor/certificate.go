// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "log/slog"

// CertificateProblem classifies a server certificate validation issue.
type CertificateProblem int

const (
	// CertificateUntrusted is a certificate that does not chain to a
	// trusted root, typically a self-signed PLC certificate.
	CertificateUntrusted CertificateProblem = iota
	CertificateExpired
	CertificateHostMismatch
	CertificateInvalid
)

func (p CertificateProblem) String() string {
	switch p {
	case CertificateUntrusted:
		return "untrusted"
	case CertificateExpired:
		return "expired"
	case CertificateHostMismatch:
		return "host mismatch"
	default:
		return "invalid"
	}
}

// CertificateIssue is one validation problem with a server
// certificate.
type CertificateIssue struct {
	Subject string
	Problem CertificateProblem
}

// CertificatePolicy decides whether to proceed despite a certificate
// issue.
type CertificatePolicy struct {
	// AutoAccept accepts untrusted certificates. Every other problem is
	// rejected regardless.
	AutoAccept bool

	Logger *slog.Logger
}

// Decide reports whether the connection may proceed.
func (p CertificatePolicy) Decide(issue CertificateIssue) bool {
	accepted := p.AutoAccept && issue.Problem == CertificateUntrusted
	if p.Logger != nil {
		if accepted {
			p.Logger.Warn("accepted server certificate",
				"subject", issue.Subject,
				"problem", issue.Problem.String(),
			)
		} else {
			p.Logger.Error("rejected server certificate",
				"subject", issue.Subject,
				"problem", issue.Problem.String(),
			)
		}
	}
	return accepted
}
