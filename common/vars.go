package common

var Version = "dev"

const (
	PackageName = "github.com/ruteri/tee-enclave-agent"

	// MetricsNamespace prefixes every exported Prometheus metric
	MetricsNamespace = "enclave_agent"
)
