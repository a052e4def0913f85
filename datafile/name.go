package datafile

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Markers an on-device file name must contain to be transferred.
const (
	DataMarker = "data"
	Extension  = ".bin"
)

// Name is a parsed on-device recording name.
//
// Format:
//
//	<subject>_<deviceTag>_<unixTimestamp>.bin
type Name struct {
	// Raw is the name exactly as listed by the unit
	Raw string

	// Subject is the text before the first underscore
	Subject string

	// DeviceTag is the text between the subject and the timestamp; it may
	// itself contain underscores
	DeviceTag string

	// Timestamp is the recording start, parsed from the last underscore
	// separated field before the first dot
	Timestamp time.Time

	// HasTimestamp is false when that field is not an integer
	HasTimestamp bool
}

// Eligible reports whether name is a recording that should be transferred.
// Other files on the unit are ignored.
func Eligible(name string) bool {
	return strings.Contains(name, DataMarker) && strings.Contains(name, Extension)
}

// Parse splits an eligible file name into its fields.
// A name without a parsable timestamp is returned with HasTimestamp false.
//
// Example:
//
//	n, err := datafile.Parse("S042_data_1700000000.bin")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(n.Subject, n.Timestamp.UTC())
func Parse(name string) (*Name, error) {
	if !Eligible(name) {
		return nil, fmt.Errorf("not a data file: %q", name)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}

	subject, rest, found := strings.Cut(name, "_")
	if !found || subject == "" {
		return nil, fmt.Errorf("missing subject in %q", name)
	}

	n := &Name{Raw: name, Subject: subject}

	base, _, _ := strings.Cut(name, ".")
	i := strings.LastIndexByte(base, '_')
	if i > len(subject) {
		if secs, err := strconv.ParseInt(base[i+1:], 10, 64); err == nil {
			n.Timestamp = time.Unix(secs, 0)
			n.HasTimestamp = true
		}
		n.DeviceTag = base[len(subject)+1 : i]
	} else {
		n.DeviceTag, _, _ = strings.Cut(rest, ".")
	}

	return n, nil
}

// Age returns how long before now the recording started. It returns false
// when the name carries no timestamp.
func (n *Name) Age(now time.Time) (time.Duration, bool) {
	if !n.HasTimestamp {
		return 0, false
	}
	return now.Sub(n.Timestamp), true
}

// OlderThan reports whether the recording started more than window before
// now. Names without a timestamp are never old.
func (n *Name) OlderThan(now time.Time, window time.Duration) bool {
	age, ok := n.Age(now)
	return ok && age > window
}

// Dir returns the per-subject cache directory under outdir.
func (n *Name) Dir(outdir string) string {
	return filepath.Join(outdir, n.Subject)
}

// LocalPath returns where the file is cached under outdir.
func (n *Name) LocalPath(outdir string) string {
	return filepath.Join(outdir, n.Subject, n.Raw)
}

// String returns the raw name.
func (n *Name) String() string {
	return n.Raw
}

// Filter parses the eligible names in names, preserving order.
// Ineligible or malformed names are skipped.
func Filter(names []string) []*Name {
	out := make([]*Name, 0, len(names))
	for _, raw := range names {
		n, err := Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Subjects returns the distinct subjects of names in first-seen order.
func Subjects(names []*Name) []string {
	seen := make(map[string]bool)
	var subjects []string
	for _, n := range names {
		if !seen[n.Subject] {
			seen[n.Subject] = true
			subjects = append(subjects, n.Subject)
		}
	}
	return subjects
}
