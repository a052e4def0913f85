// Package datafile interprets the names of recordings stored on a unit.
//
// Units name their recordings <subject>_<deviceTag>_<unixTimestamp>.bin.
// Only names containing both "data" and ".bin" are transferred; everything
// else on the SD card is ignored.
//
//	for _, n := range datafile.Filter(listing) {
//	    path := n.LocalPath("subjectdata")
//	    if n.OlderThan(time.Now(), 10*24*time.Hour) {
//	        ...
//	    }
//	}
package datafile
