package models

import (
	"path"
	"strings"
	"time"
)

// ReleaseIdentity names the installed package and where its releases live.
// It is built once from configuration and never mutated.
type ReleaseIdentity struct {
	Owner       string `json:"owner" yaml:"owner"`
	Repository  string `json:"repository" yaml:"repository"`
	Slug        string `json:"slug" yaml:"slug"`
	PluginFile  string `json:"plugin_file" yaml:"plugin_file"`
	PackageFile string `json:"package_file" yaml:"package_file"`
	Name        string `json:"name" yaml:"name"`
}

// PluginID is the host's identifier for the installed package: "{slug}/{plugin file}".
func (r ReleaseIdentity) PluginID() string {
	return path.Join(strings.TrimSpace(r.Slug), strings.TrimSpace(r.PluginFile))
}

// RepoPath is "{owner}/{repository}".
func (r ReleaseIdentity) RepoPath() string {
	return strings.TrimSpace(r.Owner) + "/" + strings.TrimSpace(r.Repository)
}

// RemoteRelease is the latest release as reported by the registry.
type RemoteRelease struct {
	TagName     string    `json:"tag_name"`
	Version     string    `json:"version"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// UpdateDescriptor tells the host update UI that a newer package exists.
// Field names are the ones the host expects verbatim.
type UpdateDescriptor struct {
	Slug       string `json:"slug"`
	Plugin     string `json:"plugin"`
	NewVersion string `json:"new_version"`
	URL        string `json:"url"`
	Package    string `json:"package"`
}

// Sections holds the HTML blocks shown in the host's release details view.
type Sections struct {
	Description string `json:"description"`
	Changelog   string `json:"changelog"`
}

// ReleaseInfo is the metadata returned for a plugin information request.
type ReleaseInfo struct {
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Version      string   `json:"version"`
	Author       string   `json:"author"`
	Homepage     string   `json:"homepage"`
	DownloadLink string   `json:"download_link"`
	Trunk        string   `json:"trunk"`
	Sections     Sections `json:"sections"`
}

// UpdateTransient is the host's periodic update bookkeeping. Checked maps
// plugin ids to installed versions and is filled by the host before it asks
// for updates; Response maps plugin ids to available updates.
type UpdateTransient struct {
	LastChecked time.Time                   `json:"last_checked"`
	Checked     map[string]string           `json:"checked"`
	Response    map[string]UpdateDescriptor `json:"response"`
}

// NewUpdateTransient returns an empty transient with initialized maps.
func NewUpdateTransient() *UpdateTransient {
	return &UpdateTransient{
		Checked:  map[string]string{},
		Response: map[string]UpdateDescriptor{},
	}
}

// HasChecked reports whether the host has done its own "checked" bookkeeping.
func (t *UpdateTransient) HasChecked() bool {
	return t != nil && len(t.Checked) > 0
}

// MarkChecked records the installed version of a plugin at the given time.
func (t *UpdateTransient) MarkChecked(pluginID, version string, at time.Time) {
	if t.Checked == nil {
		t.Checked = map[string]string{}
	}
	t.Checked[pluginID] = version
	t.LastChecked = at
}

// SetResponse stores or clears the update entry for a plugin.
func (t *UpdateTransient) SetResponse(pluginID string, d *UpdateDescriptor) {
	if d == nil {
		delete(t.Response, pluginID)
		return
	}
	if t.Response == nil {
		t.Response = map[string]UpdateDescriptor{}
	}
	t.Response[pluginID] = *d
}
