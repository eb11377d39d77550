package security

import (
	"fmt"
	"time"
)

// Report summarises how well a client session is protected at rest and in
// transit.
type Report struct {
	BackendTLS        bool
	StorageDriver     string
	StoragePersistent bool
	StorageEncrypted  bool
	IdleLogoutActive  bool
	IdleTimeout       time.Duration
	ProactiveRefresh  bool
	RefreshTimeout    time.Duration
	AuditActive       bool
	AuditBroker       bool
	MetricsActive     bool
}

type ReportInput struct {
	BackendScheme        string
	StorageDriver        string
	FilePassphraseSet    bool
	IdleEnabled          bool
	IdleTimeout          time.Duration
	ProactiveRefreshSkew time.Duration
	RefreshTimeout       time.Duration
	AuditEnabled         bool
	AMQPURL              string
	MetricsEnabled       bool
}

func BuildReport(input ReportInput) Report {
	persistent := input.StorageDriver != "" && input.StorageDriver != "memory"
	encrypted := input.StorageDriver == "file" && input.FilePassphraseSet

	return Report{
		BackendTLS:        input.BackendScheme == "https",
		StorageDriver:     input.StorageDriver,
		StoragePersistent: persistent,
		StorageEncrypted:  encrypted,
		IdleLogoutActive:  input.IdleEnabled && input.IdleTimeout > 0,
		IdleTimeout:       input.IdleTimeout,
		ProactiveRefresh:  input.ProactiveRefreshSkew > 0,
		RefreshTimeout:    input.RefreshTimeout,
		AuditActive:       input.AuditEnabled,
		AuditBroker:       input.AuditEnabled && input.AMQPURL != "",
		MetricsActive:     input.MetricsEnabled,
	}
}

// Warnings lists the weaknesses worth logging at startup.
func (r Report) Warnings() []string {
	var out []string
	if !r.BackendTLS {
		out = append(out, "backend is reached over plain http; tokens travel unencrypted")
	}
	if r.StorageDriver == "file" && !r.StorageEncrypted {
		out = append(out, "file storage has no passphrase")
	}
	if !r.IdleLogoutActive {
		out = append(out, "idle logout is disabled")
	}
	if r.RefreshTimeout > time.Minute {
		out = append(out, fmt.Sprintf("refresh timeout %s holds every waiting request that long", r.RefreshTimeout))
	}
	return out
}
