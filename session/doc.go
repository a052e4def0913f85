// Package session provides the high-level verbs for talking to one unit.
//
// A Session owns one connection and one transport.Correlator. Every verb
// blocks until the unit answers, the per-frame timeout elapses after all
// retries, or the context is cancelled.
//
// # Basic Usage
//
//	sess := session.New("/dev/ttyACM0", port, session.WithLogger(logger))
//	defer sess.Close()
//
//	id, err := sess.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//
//	names, err := sess.ListAllFiles(ctx)
//
// # Docking Mode
//
// Listing, fetching and deleting files and setting the subject name require
// the unit to be in docking-station mode. The session issues
// STARTDOCKSTNCOMM before such a verb unless the last reply already
// reported that state, and fails with *ModeSwitchError if the unit does not
// comply.
//
// # Multi-frame Replies
//
// ListFiles and GetFileData return iterators over the frames of one reply.
// Both must be closed; closing an unfinished iterator drains the remaining
// frames so they are not mistaken for the reply to the next command.
//
//	r, err := sess.GetFileData(ctx, name)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	for {
//	    chunk, err := r.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package session
