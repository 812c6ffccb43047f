package build

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gotest.tools/v3/fs"
)

func TestCollectRemotes(t *testing.T) {
	dir := fs.NewDir(t, "remotes",
		fs.WithFile("remotes.txt", `# checksums the director reported
abc

def
`, fs.WithMode(0644)))
	defer dir.Remove()

	testCases := []struct {
		name    string
		remotes []string
		file    string
		want    []string
		wantErr bool
	}{
		{
			name:    "flags only",
			remotes: []string{"abc"},
			want:    []string{"abc"},
		},
		{
			name: "file only, comments and blanks ignored",
			file: dir.Join("remotes.txt"),
			want: []string{"abc", "def"},
		},
		{
			name:    "flags merged with file",
			remotes: []string{"xyz"},
			file:    dir.Join("remotes.txt"),
			want:    []string{"xyz", "abc", "def"},
		},
		{
			name:    "missing file",
			file:    filepath.Join(dir.Path(), "nope.txt"),
			wantErr: true,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectRemotes(tt.remotes, tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandRequiresManifest(t *testing.T) {
	cmd := Command()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
