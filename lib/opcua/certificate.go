// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opcua

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/splicebridge/lib/supervisor"
)

// classifyServerCertificate inspects a DER-encoded server certificate
// (optionally followed by its chain). ok is true when there is nothing
// to decide.
func classifyServerCertificate(der []byte, now time.Time) (supervisor.CertificateIssue, bool) {
	if len(der) == 0 {
		return supervisor.CertificateIssue{}, true
	}
	certificates, err := x509.ParseCertificates(der)
	if err != nil || len(certificates) == 0 {
		return supervisor.CertificateIssue{Subject: "<unparseable>", Problem: supervisor.CertificateInvalid}, false
	}
	leaf := certificates[0]
	subject := leaf.Subject.String()

	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return supervisor.CertificateIssue{Subject: subject, Problem: supervisor.CertificateExpired}, false
	}

	intermediates := x509.NewCertPool()
	for _, certificate := range certificates[1:] {
		intermediates.AddCert(certificate)
	}
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err == nil {
		return supervisor.CertificateIssue{}, true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return supervisor.CertificateIssue{Subject: subject, Problem: supervisor.CertificateUntrusted}, false
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return supervisor.CertificateIssue{Subject: subject, Problem: supervisor.CertificateHostMismatch}, false
	}
	return supervisor.CertificateIssue{Subject: subject, Problem: supervisor.CertificateInvalid}, false
}

// checkServerCertificate applies policy to the endpoint's certificate.
func checkServerCertificate(der []byte, now time.Time, policy supervisor.CertificatePolicy) error {
	issue, ok := classifyServerCertificate(der, now)
	if ok {
		return nil
	}
	if !policy.Decide(issue) {
		return fmt.Errorf("server certificate %s rejected: %s", issue.Subject, issue.Problem)
	}
	return nil
}
