package batch

import "fmt"

// State is a step of the per-device sequence.
type State int

// Device states, in the order a device walks them.
const (
	WaitingToStart State = iota
	ConnectToDevice
	ListingFiles
	ReadingFilesStart
	ReadingFilesLogging
	DeletingFiles
	AllDone
)

var stateNames = map[State]string{
	WaitingToStart:      "WaitingToStart",
	ConnectToDevice:     "ConnectToDevice",
	ListingFiles:        "ListingFiles",
	ReadingFilesStart:   "ReadingFilesStart",
	ReadingFilesLogging: "ReadingFilesLogging",
	DeletingFiles:       "DeletingFiles",
	AllDone:             "AllDone",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}
