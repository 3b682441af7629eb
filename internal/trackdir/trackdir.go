// Package trackdir manages the directory of uploaded track files.
package trackdir

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	omnilocation "github.com/omnilocation/omnilocation"
)

const trackExt = ".gpx"

// Dir is a flat directory of .gpx files keyed by basename. All filenames are
// reduced to their basename before use, so path traversal cannot escape it.
type Dir struct {
	root string
}

func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "trackdir: create %s failed", root)
	}
	return &Dir{root: root}, nil
}

// List returns the stored track filenames, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "trackdir: read dir failed")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), trackExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Save stores the uploaded content under the sanitized filename and returns
// the name actually used. Only .gpx files are accepted.
func (d *Dir) Save(filename string, r io.Reader) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", omnilocation.NewValidationError("file", "no file selected")
	}
	if !strings.EqualFold(filepath.Ext(name), trackExt) {
		return "", omnilocation.NewValidationError("file", "only .gpx files are allowed")
	}

	f, err := os.Create(filepath.Join(d.root, name))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "trackdir: create %s failed", name)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", pkgerrors.Wrapf(err, "trackdir: write %s failed", name)
	}
	log.Info().Str("track", name).Msg("track file stored")
	return name, nil
}

// Delete removes a stored track file.
func (d *Dir) Delete(filename string) error {
	path, err := d.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return pkgerrors.Wrapf(err, "trackdir: delete %s failed", filename)
	}
	log.Info().Str("track", filepath.Base(path)).Msg("track file deleted")
	return nil
}

// Path resolves a stored track filename to its absolute path, failing with a
// not-found error when it does not exist.
func (d *Dir) Path(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	path := filepath.Join(d.root, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", omnilocation.NewNotFoundError("track", name)
	}
	return path, nil
}
