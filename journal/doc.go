// Package journal keeps a sqlite ledger of synchronizer runs: which files
// each unit gave up, which it did not, what was deleted from it and how its
// clock was set.
//
//	store, err := journal.Open("arimu.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	syncer := batch.New(batch.WithRecorder(store))
//	...
//	files, err := store.Files(ctx, "ARIMU-07")
package journal
