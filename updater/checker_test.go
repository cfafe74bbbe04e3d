package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vascofialho-nl/releasecheck/clock"
	appErrors "github.com/vascofialho-nl/releasecheck/errors"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/models"
	"github.com/vascofialho-nl/releasecheck/registry"
	"github.com/vascofialho-nl/releasecheck/store"
)

var testIdentity = models.ReleaseIdentity{
	Owner:       "vascofialho-nl",
	Repository:  "google-maps-display-for-acf",
	Slug:        "vjfnl-acf-map-display",
	PluginFile:  "vjfnl-acf-map-display.php",
	PackageFile: "vjfnl-acf-map-display.zip",
	Name:        "Google Maps Display for ACF",
}

const testPluginID = "vjfnl-acf-map-display/vjfnl-acf-map-display.php"

type fakeManifest struct {
	version string
	err     error
	calls   atomic.Int32
}

func (m *fakeManifest) ReadVersion(context.Context) (string, error) {
	m.calls.Add(1)
	return m.version, m.err
}

// fakeRegistry serves the latest-release resource and counts requests.
type fakeRegistry struct {
	status int
	body   string
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(f.body))
}

type checkerFixture struct {
	checker  *DefaultChecker
	registry *fakeRegistry
	manifest *fakeManifest
	server   *httptest.Server
}

func newFixture(t *testing.T, reg *fakeRegistry, man *fakeManifest, mutate func(*Params)) *checkerFixture {
	t.Helper()
	server := httptest.NewServer(reg)
	t.Cleanup(server.Close)

	client := registry.New(registry.Params{
		Config: registry.Config{
			APIBase:      server.URL,
			ProbeTimeout: 100 * time.Millisecond,
			FetchTimeout: time.Second,
			HTTPClient:   server.Client(),
		},
		Owner:      testIdentity.Owner,
		Repository: testIdentity.Repository,
		UserAgent:  registry.UserAgent("WordPress", "6.6.2"),
	})

	p := Params{
		Identity:    testIdentity,
		Registry:    client,
		Manifest:    man,
		Author:      `<a href="#">Plugin Author</a>`,
		Description: "Plugin description goes here.",
	}
	if mutate != nil {
		mutate(&p)
	}
	return &checkerFixture{
		checker:  New(p),
		registry: reg,
		manifest: man,
		server:   server,
	}
}

func checkedTransient() *models.UpdateTransient {
	t := models.NewUpdateTransient()
	t.MarkChecked(testPluginID, "1.0.0", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	return t
}

func TestCheckForUpdateVersionScenarios(t *testing.T) {
	tests := []struct {
		name    string
		local   string
		tag     string
		wantVer string
	}{
		{name: "remote newer", local: "1.0.0", tag: "v1.2.0", wantVer: "1.2.0"},
		{name: "remote equal", local: "1.2.0", tag: "v1.2.0"},
		{name: "remote older", local: "2.0.0", tag: "v1.9.9"},
		{name: "untagged prefix", local: "2.2.9", tag: "2.3.0", wantVer: "2.3.0"},
		{name: "semantic not lexical", local: "1.9.0", tag: "v1.10.0", wantVer: "1.10.0"},
		{name: "short local form", local: "1.2", tag: "v1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t,
				&fakeRegistry{body: `{"tag_name":"` + tt.tag + `"}`},
				&fakeManifest{version: tt.local},
				nil,
			)

			d, err := fx.checker.CheckForUpdate(context.Background(), checkedTransient())
			if err != nil {
				t.Fatalf("CheckForUpdate() error = %v", err)
			}
			if tt.wantVer == "" {
				if d != nil {
					t.Fatalf("expected no update, got %#v", d)
				}
				return
			}
			if d == nil {
				t.Fatal("expected update descriptor")
			}
			want := models.UpdateDescriptor{
				Slug:       testPluginID,
				Plugin:     testPluginID,
				NewVersion: tt.wantVer,
				URL:        "https://github.com/vascofialho-nl/google-maps-display-for-acf",
				Package:    "https://github.com/vascofialho-nl/google-maps-display-for-acf/releases/download/" + tt.wantVer + "/vjfnl-acf-map-display.zip",
			}
			if *d != want {
				t.Fatalf("descriptor = %#v, want %#v", *d, want)
			}
		})
	}
}

func TestCheckForUpdateStripsSingleV(t *testing.T) {
	tests := []struct {
		tag     string
		wantVer string
	}{
		{"v2.3.0", "2.3.0"},
		{"2.3.0", "2.3.0"},
		// "vv2.3.0" strips to "v2.3.0", which still parses as 2.3.0
		{"vv2.3.0", "v2.3.0"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			fx := newFixture(t,
				&fakeRegistry{body: `{"tag_name":"` + tt.tag + `"}`},
				&fakeManifest{version: "1.0.0"},
				nil,
			)
			got, ok := fx.checker.GetLatestRemoteRelease(context.Background())
			if !ok || got != tt.wantVer {
				t.Fatalf("GetLatestRemoteRelease() = %q, %v, want %q", got, ok, tt.wantVer)
			}
		})
	}
}

func TestCheckForUpdateSkipsWithoutCheckedBookkeeping(t *testing.T) {
	fx := newFixture(t,
		&fakeRegistry{body: `{"tag_name":"v9.0.0"}`},
		&fakeManifest{version: "1.0.0"},
		nil,
	)

	for name, tr := range map[string]*models.UpdateTransient{
		"nil":   nil,
		"empty": models.NewUpdateTransient(),
	} {
		t.Run(name, func(t *testing.T) {
			d, err := fx.checker.CheckForUpdate(context.Background(), tr)
			if err != nil || d != nil {
				t.Fatalf("CheckForUpdate() = %#v, %v, want nil, nil", d, err)
			}
		})
	}
	if n := fx.registry.calls.Load(); n != 0 {
		t.Fatalf("expected no registry calls, got %d", n)
	}
}

func TestCheckForUpdateProbeFailureShortCircuits(t *testing.T) {
	tests := []struct {
		name string
		reg  *fakeRegistry
	}{
		{name: "server error", reg: &fakeRegistry{status: http.StatusInternalServerError}},
		{name: "timeout", reg: &fakeRegistry{body: `{"tag_name":"v9.0.0"}`, delay: 2 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			man := &fakeManifest{version: "1.0.0"}
			fx := newFixture(t, tt.reg, man, nil)

			d, err := fx.checker.CheckForUpdate(context.Background(), checkedTransient())
			if err != nil || d != nil {
				t.Fatalf("CheckForUpdate() = %#v, %v, want nil, nil", d, err)
			}
			if n := fx.registry.calls.Load(); n != 1 {
				t.Fatalf("expected only the probe request, got %d requests", n)
			}
			if n := man.calls.Load(); n != 0 {
				t.Fatalf("manifest should not be read, got %d reads", n)
			}
		})
	}
}

func TestCheckForUpdateMissingTag(t *testing.T) {
	for name, body := range map[string]string{
		"missing tag":    `{"name":"untagged"}`,
		"empty tag":      `{"tag_name":""}`,
		"malformed body": `not json`,
	} {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, &fakeRegistry{body: body}, &fakeManifest{version: "1.0.0"}, nil)
			d, err := fx.checker.CheckForUpdate(context.Background(), checkedTransient())
			if err != nil || d != nil {
				t.Fatalf("CheckForUpdate() = %#v, %v, want nil, nil", d, err)
			}
		})
	}
}

func TestCheckForUpdateManifestErrorIsConfigError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fx := newFixture(t,
		&fakeRegistry{body: `{"tag_name":"v1.2.0"}`},
		&fakeManifest{err: appErrors.Config("manifest not found", nil)},
		func(p *Params) { p.Logger = logger.FromZap(zap.New(core)) },
	)

	d, err := fx.checker.CheckForUpdate(context.Background(), checkedTransient())
	if d != nil {
		t.Fatalf("expected no descriptor, got %#v", d)
	}
	if !appErrors.IsCode(err, appErrors.CodeConfig) {
		t.Fatalf("CheckForUpdate() error = %v, want config error", err)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Fatalf("expected exactly one error log, got %d", n)
	}
	if n := fx.registry.calls.Load(); n != 1 {
		t.Fatalf("release fetch should not run after a config error, got %d requests", n)
	}
}

func TestCheckForUpdateIsIdempotent(t *testing.T) {
	fx := newFixture(t,
		&fakeRegistry{body: `{"tag_name":"v1.2.0"}`},
		&fakeManifest{version: "1.0.0"},
		nil,
	)
	ctx := context.Background()

	first, err := fx.checker.CheckForUpdate(ctx, checkedTransient())
	if err != nil || first == nil {
		t.Fatalf("first check = %#v, %v", first, err)
	}
	second, err := fx.checker.CheckForUpdate(ctx, checkedTransient())
	if err != nil || second == nil {
		t.Fatalf("second check = %#v, %v", second, err)
	}
	if *first != *second {
		t.Fatalf("checks differ: %#v vs %#v", first, second)
	}
}

func TestCheckForUpdateLogsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fx := newFixture(t,
		&fakeRegistry{body: `{"tag_name":"v1.0.0"}`},
		&fakeManifest{version: "1.0.0"},
		func(p *Params) { p.Logger = logger.FromZap(zap.New(core)) },
	)

	if _, err := fx.checker.CheckForUpdate(context.Background(), checkedTransient()); err != nil {
		t.Fatalf("CheckForUpdate() error = %v", err)
	}
	entries := logs.FilterMessage("update check finished").All()
	if len(entries) != 1 {
		t.Fatalf("expected one outcome entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["outcome"]; got != string(OutcomeUpToDate) {
		t.Fatalf("outcome = %v, want %s", got, OutcomeUpToDate)
	}
}

func TestAvailabilityIsCached(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	st := store.NewSQLiteStore(store.Params{Clock: clk})
	if err := st.Open(ctx); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fx := newFixture(t,
		&fakeRegistry{body: `{"tag_name":"v1.0.0"}`},
		&fakeManifest{version: "1.0.0"},
		func(p *Params) {
			p.Store = st
			p.Clock = clk
			p.AvailabilityTTL = time.Minute
		},
	)

	if !fx.checker.CheckRepositoryAvailability(ctx) {
		t.Fatal("expected repository to be available")
	}
	if !fx.checker.CheckRepositoryAvailability(ctx) {
		t.Fatal("expected cached availability")
	}
	if n := fx.registry.calls.Load(); n != 1 {
		t.Fatalf("expected one probe while cached, got %d", n)
	}

	clk.Advance(time.Minute)
	fx.checker.CheckRepositoryAvailability(ctx)
	if n := fx.registry.calls.Load(); n != 2 {
		t.Fatalf("expected a new probe after expiry, got %d", n)
	}
}

func TestApplyToTransient(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{body: `{"tag_name":"v1.2.0"}`}
	man := &fakeManifest{version: "1.0.0"}
	fx := newFixture(t, reg, man, nil)

	tr, err := fx.checker.ApplyToTransient(ctx, checkedTransient())
	if err != nil {
		t.Fatalf("ApplyToTransient() error = %v", err)
	}
	if got := tr.Response[testPluginID].NewVersion; got != "1.2.0" {
		t.Fatalf("response new_version = %q", got)
	}

	// once installed, the stale entry is cleared
	man.version = "1.2.0"
	tr, err = fx.checker.ApplyToTransient(ctx, tr)
	if err != nil {
		t.Fatalf("ApplyToTransient() error = %v", err)
	}
	if _, ok := tr.Response[testPluginID]; ok {
		t.Fatalf("expected response entry to be cleared, got %#v", tr.Response)
	}
}

func TestDescribeRelease(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t,
		&fakeRegistry{body: `{"tag_name":"v1.2.0","body":"## Fixes\n\n* map zoom <script>alert(1)</script>"}`},
		&fakeManifest{version: "1.0.0"},
		nil,
	)

	if info, ok := fx.checker.DescribeRelease(ctx, "some-other-plugin"); ok || info != nil {
		t.Fatalf("expected pass-through for foreign slug, got %#v", info)
	}
	if n := fx.registry.calls.Load(); n != 0 {
		t.Fatalf("foreign slug should not hit the registry, got %d requests", n)
	}

	info, ok := fx.checker.DescribeRelease(ctx, testIdentity.Repository)
	if !ok {
		t.Fatal("expected release info")
	}
	download := "https://github.com/vascofialho-nl/google-maps-display-for-acf/releases/download/1.2.0/vjfnl-acf-map-display.zip"
	if info.Version != "1.2.0" || info.DownloadLink != download || info.Trunk != download {
		t.Fatalf("unexpected info: %#v", info)
	}
	if info.Name != testIdentity.Name || info.Slug != testIdentity.Repository {
		t.Fatalf("name/slug = %q/%q", info.Name, info.Slug)
	}
	if info.Sections.Description != "<p>Plugin description goes here.</p>" {
		t.Fatalf("description = %q", info.Sections.Description)
	}
	if !contains(info.Sections.Changelog, "<h2>Fixes</h2>") || contains(info.Sections.Changelog, "<script>") {
		t.Fatalf("changelog = %q", info.Sections.Changelog)
	}
}

func TestDescribeReleaseUnavailable(t *testing.T) {
	fx := newFixture(t,
		&fakeRegistry{status: http.StatusServiceUnavailable},
		&fakeManifest{version: "1.0.0"},
		nil,
	)
	if info, ok := fx.checker.DescribeRelease(context.Background(), testIdentity.Repository); ok || info != nil {
		t.Fatalf("expected no info when registry is down, got %#v", info)
	}
	if n := fx.registry.calls.Load(); n != 1 {
		t.Fatalf("expected only the probe request, got %d", n)
	}
}

func TestCheckForUpdateOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		local string
		tag   string
		want  Outcome
	}{
		{name: "up to date", local: "1.0.0", tag: "v1.0.0", want: OutcomeUpToDate},
		{name: "update available", local: "1.0.0", tag: "v1.1.0", want: OutcomeUpdateAvailable},
		{name: "four part remote", local: "1.0.0", tag: "v1.0.0.1", want: OutcomeInvalidVersion},
		{name: "four part local", local: "1.0.0.1", tag: "v1.0.1", want: OutcomeInvalidVersion},
		{name: "garbage remote", local: "1.0.0", tag: "latest", want: OutcomeInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			fx := newFixture(t,
				&fakeRegistry{body: `{"tag_name":"` + tt.tag + `"}`},
				&fakeManifest{version: tt.local},
				func(p *Params) { p.Logger = logger.FromZap(zap.New(core)) },
			)

			d, err := fx.checker.CheckForUpdate(context.Background(), checkedTransient())
			if err != nil {
				t.Fatalf("CheckForUpdate() error = %v", err)
			}
			if (d != nil) != (tt.want == OutcomeUpdateAvailable) {
				t.Fatalf("descriptor = %#v for outcome %s", d, tt.want)
			}
			entries := logs.FilterMessage("update check finished").All()
			if len(entries) != 1 {
				t.Fatalf("expected one outcome entry, got %d", len(entries))
			}
			if got := entries[0].ContextMap()["outcome"]; got != string(tt.want) {
				t.Fatalf("outcome = %v, want %s", got, tt.want)
			}
		})
	}
}
