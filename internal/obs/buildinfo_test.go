package obs

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func stubBuildInfo(t *testing.T, settings ...debug.BuildSetting) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
	t.Cleanup(func() { readBuildInfo = prev })
}

func TestResolveBuild(t *testing.T) {
	stubBuildInfo(t,
		debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)

	if b := ResolveBuild("1.2.0", "abc123"); b.Commit != "abc123" || b.Version != "1.2.0" {
		t.Fatalf("linker commit must win: %+v", b)
	}
	b := ResolveBuild("1.2.0", "dev")
	if b.Commit != "0123456789ab-dirty" {
		t.Fatalf("expected vcs revision, got %q", b.Commit)
	}
	if b.GoVersion != runtime.Version() {
		t.Fatalf("unexpected go version %q", b.GoVersion)
	}
	if b := ResolveBuild("", ""); b.Version != "unknown" || b.Commit != "0123456789ab-dirty" {
		t.Fatalf("unexpected defaults: %+v", b)
	}
}

func TestResolveBuildWithoutVCS(t *testing.T) {
	stubBuildInfo(t)
	if b := ResolveBuild("1.0.0", ""); b.Commit != "dev" {
		t.Fatalf("expected dev, got %q", b.Commit)
	}
}

func TestInitBuildInfoPublishesSingleSeries(t *testing.T) {
	stubBuildInfo(t)
	InitBuildInfo("1.0.0", "aaa")
	b := InitBuildInfo("1.0.1", "bbb")

	if got := testutil.ToFloat64(buildInfo.WithLabelValues(b.Version, b.Commit, b.GoVersion)); got != 1 {
		t.Fatalf("expected gauge 1, got %v", got)
	}
	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected one build series after re-init, got %d", n)
	}
}
