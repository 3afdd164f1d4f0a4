package stage

import (
	"path/filepath"
)

const synDir = "syn"

// ResultsOptions locates a template construction results dir.
type ResultsOptions struct {
	// Dir wins over Root and Prefix when set.
	Dir    string
	Root   string
	Prefix string
}

// Resolve returns Dir, or the latest directory of Root starting with Prefix.
func (o ResultsOptions) Resolve() (string, error) {
	dir := o.Dir
	if dir == "" {
		latest, err := LatestDir(o.Root, o.Prefix)
		if err != nil {
			return "", err
		}
		dir = latest
	}
	if err := requireDir(dir); err != nil {
		return "", err
	}
	if err := requireDir(filepath.Join(dir, synDir)); err != nil {
		return "", err
	}

	return dir, nil
}
