// Package index reads the per-artifact version indices of a release source
// tree. Each index lists the builds known for one package or job on one
// tier (final or dev).
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v2"
)

// FileName is the index document inside an artifact's build directory.
const FileName = "index.yml"

// Record is one build entry of an artifact's version index.
type Record struct {
	Version     string
	SHA1        string
	BlobstoreID string
}

// Index holds the version records of one artifact in document order, plus
// the directory it was loaded from. The tier's local blob cache lives in
// the same directory.
type Index struct {
	Dir     string
	Records []Record
}

// Load reads <dir>/index.yml. A missing file yields an empty index; an
// artifact with no builds on a tier simply never matches.
//
// The synthetic keys of the builds mapping are discarded: resolution only
// ever looks at the fields embedded in each record, so an index key and its
// record's declared version may diverge without affecting lookup. Document
// order is preserved so that first-match scans are deterministic.
func Load(dir string) (Index, error) {
	idx := Index{Dir: dir}

	yamlText, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}

	var doc struct {
		Builds yaml.MapSlice `yaml:"builds"`
	}
	if err := yaml.Unmarshal(yamlText, &doc); err != nil {
		return idx, fmt.Errorf("malformed index %s: %w", filepath.Join(dir, FileName), err)
	}

	for _, item := range doc.Builds {
		fields, ok := item.Value.(yaml.MapSlice)
		if !ok {
			continue
		}
		var rec Record
		for _, f := range fields {
			key, ok := f.Key.(string)
			if !ok {
				continue
			}
			val, ok := scalarString(f.Value)
			if !ok {
				continue
			}
			switch key {
			case "version":
				rec.Version = val
			case "sha1":
				rec.SHA1 = val
			case "blobstore_id":
				rec.BlobstoreID = val
			}
		}
		idx.Records = append(idx.Records, rec)
	}
	return idx, nil
}

// FindBySHA1 returns the first record in document order whose sha1 equals
// sum. Records carrying no sha1 never match.
func (i Index) FindBySHA1(sum string) (Record, bool) {
	for _, rec := range i.Records {
		if rec.SHA1 != "" && rec.SHA1 == sum {
			return rec, true
		}
	}
	return Record{}, false
}

func scalarString(v interface{}) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}
