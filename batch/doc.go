// Package batch synchronizes a queue of units with a local file cache.
//
// For each port in turn the Synchronizer walks a fixed sequence:
//
//	WaitingToStart -> ConnectToDevice -> ListingFiles -> ReadingFilesStart
//	    -> ReadingFilesLogging -> DeletingFiles -> AllDone
//
// It connects and sets the unit clock, lists the unit's files, downloads the
// eligible ones not yet cached under OutDir/<subject>/, and deletes from the
// unit the cached recordings older than the retention window. A download
// that stops making progress is abandoned by a watchdog; files are written
// only once complete.
//
// # Basic Usage
//
//	syncer := batch.New(
//	    batch.WithOutDir("subjectdata"),
//	    batch.WithReportCallback(func(r batch.Report) {
//	        fmt.Println(r.Text)
//	    }),
//	)
//
//	result, err := syncer.Sync(ctx, ports)
//	for _, d := range result.Devices {
//	    fmt.Println(d.Port, d.Got, d.NotGot, d.Err)
//	}
//
// # Maintenance
//
// After a batch, Maintain keeps the clocks of the connected units set until
// its context is cancelled. Run does both:
//
//	result, err := syncer.Run(ctx, ports)
//
// # Failures
//
// Failures are recorded rather than returned. A file that cannot be fetched
// lands in NotGot and the batch moves on; a port that cannot be opened, or
// whose device does not identify as a unit, ends with DeviceResult.Err set.
package batch
