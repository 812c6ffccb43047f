package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gotest.tools/v3/fs"
)

func TestLoad(t *testing.T) {
	dir := fs.NewDir(t, "manifests",
		fs.WithFile("valid.yml", `---
name: demo
version: "1"
packages:
- name: p1
  version: "1"
  sha1: abc
  fingerprint: fp1
jobs:
- name: j1
  version: "1"
  sha1: def
`, fs.WithMode(0644)),
		fs.WithFile("missing-sha1.yml", `---
name: demo
version: "1"
packages:
- name: p1
  version: "1"
jobs: []
`, fs.WithMode(0644)),
		fs.WithFile("missing-jobs.yml", `---
name: demo
version: "1"
packages: []
`, fs.WithMode(0644)),
		fs.WithFile("not-yaml.yml", "{{{", fs.WithMode(0644)))
	defer dir.Remove()

	testCases := []struct {
		name    string
		file    string
		want    Manifest
		wantErr bool
	}{
		{
			name: "valid manifest",
			file: "valid.yml",
			want: Manifest{
				Name:    "demo",
				Version: "1",
				Packages: []Artifact{
					{Name: "p1", Version: "1", SHA1: "abc", Fingerprint: "fp1"},
				},
				Jobs: []Artifact{
					{Name: "j1", Version: "1", SHA1: "def"},
				},
			},
		},
		{
			name:    "package without sha1 is rejected at load time",
			file:    "missing-sha1.yml",
			wantErr: true,
		},
		{
			name:    "manifest without jobs is rejected",
			file:    "missing-jobs.yml",
			wantErr: true,
		},
		{
			name:    "malformed document",
			file:    "not-yaml.yml",
			wantErr: true,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(filepath.Join(dir.Path(), tt.file))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/no/such/manifest.yml")
	assert.Error(t, err)
}
