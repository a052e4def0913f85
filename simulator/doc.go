// Package simulator provides an in-memory ARIMU unit for tests, examples and
// dry runs without hardware.
//
// A Unit speaks the wire protocol over a buffered duplex link and keeps its
// SD card, RTC offset, subject and firmware state across reconnects:
//
//	unit := simulator.New("ARIMU-07")
//	unit.AddFile("s01_data_1700000000.bin", payload)
//
//	sess := session.New("sim0", unit.Port())
//	defer sess.Close()
//
// Faults can be injected per command or per file:
//
//	simulator.New("ARIMU-07",
//	    simulator.WithDroppedReplies(protocol.CmdPing, 2),
//	    simulator.WithStallAfter("s01_data_1700000000.bin", 3),
//	    simulator.WithListChunk(7),
//	)
package simulator
