package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/moffa90/go-arimu/datafile"
)

// PlanEntry is one eligible remote file.
type PlanEntry struct {
	File *datafile.Name

	// ShouldDownload is false when the file is already cached locally
	ShouldDownload bool
}

// TransferPlan lists a device's eligible files in listing order.
// It is built once per device from a complete listing.
type TransferPlan []PlanEntry

// BuildPlan keeps the eligible names of a complete listing and marks those
// not yet cached under outdir for download.
//
// Example:
//
//	names, _ := sess.ListAllFiles(ctx)
//	plan, err := batch.BuildPlan(names, "subjectdata")
//	for _, n := range plan.Downloads() {
//	    ...
//	}
func BuildPlan(names []string, outdir string) (TransferPlan, error) {
	files := datafile.Filter(names)
	plan := make(TransferPlan, 0, len(files))

	for _, f := range files {
		cached, err := exists(f.LocalPath(outdir))
		if err != nil {
			return nil, err
		}
		plan = append(plan, PlanEntry{File: f, ShouldDownload: !cached})
	}
	return plan, nil
}

// Downloads returns the files still to fetch.
func (p TransferPlan) Downloads() []*datafile.Name {
	var out []*datafile.Name
	for _, e := range p {
		if e.ShouldDownload {
			out = append(out, e.File)
		}
	}
	return out
}

// Cached returns the files already present locally when the plan was built.
func (p TransferPlan) Cached() []*datafile.Name {
	var out []*datafile.Name
	for _, e := range p {
		if !e.ShouldDownload {
			out = append(out, e.File)
		}
	}
	return out
}

// Files returns every eligible file.
func (p TransferPlan) Files() []*datafile.Name {
	out := make([]*datafile.Name, len(p))
	for i, e := range p {
		out[i] = e.File
	}
	return out
}

// prepareDirs creates the per-subject directories for the plan.
func (p TransferPlan) prepareDirs(outdir string) error {
	for _, subject := range datafile.Subjects(p.Files()) {
		dir := (&datafile.Name{Subject: subject}).Dir(outdir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create subject directory: %w", err)
		}
	}
	return nil
}

func exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check %s: %w", path, err)
}
