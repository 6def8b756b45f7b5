package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Service   string
	Version   string
	Commit    string
	GoVersion string
}

// CurrentBuild fills in the commit from the embedded VCS stamp when commit is
// empty or "dev", and the Go version from the runtime.
func CurrentBuild(service, version, commit string) BuildInfo {
	if commit == "" || commit == "dev" {
		commit = "dev"
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
				}
			}
		}
	}
	return BuildInfo{Service: service, Version: version, Commit: commit, GoVersion: runtime.Version()}
}

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sgad",
			Subsystem: "auth",
			Name:      "build_info",
			Help:      "Always 1; labels identify the deployed auth service binary.",
		},
		[]string{"service", "version", "commit", "goversion"},
	)
)

// InitBuildInfo publishes b as the only build_info series.
func InitBuildInfo(b BuildInfo) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Service, b.Version, b.Commit, b.GoVersion).Set(1)
}
