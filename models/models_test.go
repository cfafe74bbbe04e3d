package models

import (
	"testing"
	"time"
)

func TestReleaseIdentityPaths(t *testing.T) {
	id := ReleaseIdentity{
		Owner:      "vascofialho-nl",
		Repository: "google-maps-display-for-acf",
		Slug:       "vjfnl-acf-map-display",
		PluginFile: "vjfnl-acf-map-display.php",
	}
	if got := id.PluginID(); got != "vjfnl-acf-map-display/vjfnl-acf-map-display.php" {
		t.Fatalf("PluginID() = %q", got)
	}
	if got := id.RepoPath(); got != "vascofialho-nl/google-maps-display-for-acf" {
		t.Fatalf("RepoPath() = %q", got)
	}
}

func TestUpdateTransientBookkeeping(t *testing.T) {
	tr := &UpdateTransient{}
	if tr.HasChecked() {
		t.Fatal("empty transient should not report checked")
	}
	var nilTransient *UpdateTransient
	if nilTransient.HasChecked() {
		t.Fatal("nil transient should not report checked")
	}

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tr.MarkChecked("a/a.php", "1.0.0", at)
	if !tr.HasChecked() || tr.Checked["a/a.php"] != "1.0.0" || !tr.LastChecked.Equal(at) {
		t.Fatalf("MarkChecked did not record bookkeeping: %#v", tr)
	}

	tr.SetResponse("a/a.php", &UpdateDescriptor{Slug: "a/a.php", NewVersion: "1.1.0"})
	if tr.Response["a/a.php"].NewVersion != "1.1.0" {
		t.Fatalf("SetResponse did not store descriptor: %#v", tr.Response)
	}
	tr.SetResponse("a/a.php", nil)
	if _, ok := tr.Response["a/a.php"]; ok {
		t.Fatal("SetResponse(nil) should clear the entry")
	}
}
