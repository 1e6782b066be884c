package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idurar_build_info",
			Help: "Always 1; labels identify the running ERP API build.",
		},
		[]string{"version", "commit", "go_version"},
	)

	readBuildInfo = debug.ReadBuildInfo
)

// Build identifies the running binary.
type Build struct {
	Version   string
	Commit    string
	GoVersion string
}

// ResolveBuild fills in the commit from the embedded VCS stamp when the
// linker did not set one.
func ResolveBuild(version, commit string) Build {
	b := Build{Version: version, Commit: commit, GoVersion: runtime.Version()}
	if b.Version == "" {
		b.Version = "unknown"
	}
	if b.Commit != "" && b.Commit != "dev" {
		return b
	}
	if info, ok := readBuildInfo(); ok {
		var revision, modified string
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				modified = s.Value
			}
		}
		if revision != "" {
			if len(revision) > 12 {
				revision = revision[:12]
			}
			if modified == "true" {
				revision += "-dirty"
			}
			b.Commit = revision
		}
	}
	if b.Commit == "" {
		b.Commit = "dev"
	}
	return b
}

// InitBuildInfo publishes the resolved build on idurar_build_info and returns it.
func InitBuildInfo(version, commit string) Build {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	b := ResolveBuild(version, commit)
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.Commit, b.GoVersion).Set(1)
	return b
}
