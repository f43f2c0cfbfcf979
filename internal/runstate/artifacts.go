package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// Artifact filenames inside a run directory.
const (
	RecordFile        = "run.json"
	MergedFile        = "merged_candidates.json"
	SelectedFile      = "selected_leads.json"
	EnrichmentsFile   = "enrichments.json"
	StagedFile        = "staged_history.json"
	EmailFile         = "email.json"
	ReceiptFile       = "send_receipt.json"
	LegacyReceiptFile = "receipt.json"
	ErrorsFile        = "errors.log"
)

// WriteArtifact atomically writes v as indented JSON under the run
// directory.
func WriteArtifact(dir RunDir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "runstate: marshal artifact %s", name)
	}

	path := dir.Join(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "runstate: write artifact %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "runstate: replace artifact %s", path)
	}
	return nil
}

// ReadArtifact reads a JSON artifact from the run directory into v.
func ReadArtifact(dir RunDir, name string, v any) error {
	data, err := os.ReadFile(dir.Join(name))
	if err != nil {
		return eris.Wrapf(err, "runstate: read artifact %s in %s", name, dir)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "runstate: parse artifact %s in %s", name, dir)
	}
	return nil
}

// ArtifactExists reports whether the named artifact is present.
func ArtifactExists(dir RunDir, name string) bool {
	_, err := os.Stat(dir.Join(name))
	return err == nil
}

// AppendError appends a timestamped line to the run's errors.log. Used
// for recoverable failures that the pipeline swallows (enrichment and
// the like) so postmortems never need a re-run.
func AppendError(dir RunDir, stage string, cause error) error {
	f, err := os.OpenFile(dir.Join(ErrorsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "runstate: open errors.log")
	}
	defer f.Close()

	line := fmt.Sprintf("%s [%s] %v\n", time.Now().UTC().Format(time.RFC3339), stage, cause)
	if _, err := f.WriteString(line); err != nil {
		return eris.Wrap(err, "runstate: append errors.log")
	}
	return nil
}

// ListRunDirs walks the runs root (one directory per day, one per run)
// and returns every directory containing a run record, sorted by path.
// The date/stamp naming makes lexical order chronological.
func ListRunDirs(root string) ([]RunDir, error) {
	days, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runstate: read runs root %s", root)
	}

	var dirs []RunDir
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		runs, err := os.ReadDir(filepath.Join(root, day.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "runstate: read day dir %s", day.Name())
		}
		for _, run := range runs {
			if !run.IsDir() {
				continue
			}
			dir := RunDir(filepath.Join(root, day.Name(), run.Name()))
			if ArtifactExists(dir, RecordFile) {
				dirs = append(dirs, dir)
			}
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })
	return dirs, nil
}
