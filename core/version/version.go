// Package version reports the build version of udpcore binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Version identifies a build.
type Version struct {
	Version  string    `json:"version"`
	Commit   string    `json:"commit,omitempty"`
	Date     time.Time `json:"date,omitempty"`
	Modified bool      `json:"modified,omitempty"`
}

func (v Version) String() string {
	return v.Version
}

// V is the version of the running binary.
var V = fromBuildInfo(debug.ReadBuildInfo())

func fromBuildInfo(bi *debug.BuildInfo, ok bool) (v Version) {
	v.Version = "development"
	if !ok {
		return v
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v.Version = bi.Main.Version
	}

	settings := map[string]string{}
	for _, kv := range bi.Settings {
		settings[kv.Key] = kv.Value
	}
	commit := settings["vcs.revision"]
	date, e := time.Parse(time.RFC3339, settings["vcs.time"])
	if settings["vcs"] != "git" || len(commit) < 12 || e != nil {
		return v
	}
	v.Commit, v.Date = commit, date
	v.Modified = settings["vcs.modified"] == "true"
	if v.Version == "development" {
		suffix := ""
		if v.Modified {
			suffix = "-dirty"
		}
		v.Version = fmt.Sprintf("v0.0.0-%s-%s%s", date.UTC().Format("20060102150405"), commit[:12], suffix)
	}
	return v
}
