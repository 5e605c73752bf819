package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foodbridge_build_info",
			Help: "Constant 1 labelled with the running binary's version, commit and Go toolchain.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes the binary's identity. Calling it again replaces
// the previous series so only one is ever exported.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
