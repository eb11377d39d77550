package goSession

import (
	"net/url"

	"github.com/MrEthical07/goSession/internal/security"
)

// SecurityReport is a read-only snapshot of the Manager's security
// posture, returned by [Manager.SecurityReport].
type SecurityReport = security.Report

// SecurityReport derives the posture from the active configuration.
func (m *Manager) SecurityReport() SecurityReport {
	if m == nil {
		return SecurityReport{}
	}
	return buildSecurityReport(m.cfg)
}

func buildSecurityReport(cfg Config) SecurityReport {
	var scheme string
	if u, err := url.Parse(cfg.Backend.BaseURL); err == nil {
		scheme = u.Scheme
	}
	return security.BuildReport(security.ReportInput{
		BackendScheme:        scheme,
		StorageDriver:        cfg.Storage.Driver,
		FilePassphraseSet:    cfg.Storage.FilePassphrase != "",
		IdleEnabled:          cfg.Idle.Enabled,
		IdleTimeout:          cfg.Idle.Timeout,
		ProactiveRefreshSkew: cfg.Client.ProactiveRefreshSkew,
		RefreshTimeout:       cfg.Refresh.Timeout,
		AuditEnabled:         cfg.Audit.Enabled,
		AMQPURL:              cfg.Audit.AMQPURL,
		MetricsEnabled:       cfg.Metrics.Enabled,
	})
}
