package protocol

import "fmt"

// Frame structure constants.
const (
	// Header is the byte repeated twice at the start of every frame (0xFF)
	Header = 0xFF

	// HeaderSize is the number of header bytes
	HeaderSize = 2

	// MinFrameSize is the smallest valid frame:
	// HEADER(2) + N(1) + CHECKSUM(1), with an empty payload
	MinFrameSize = 4

	// MaxPayloadSize is the largest payload that fits a one-byte N (N = len(payload)+1)
	MaxPayloadSize = 254

	// ReplyHeaderSize is the number of leading inbound payload bytes:
	// CMD(1) + STATE(1) + ERRORS(1)
	ReplyHeaderSize = 3
)

// DefaultBaudRate is the fixed serial speed of every unit.
const DefaultBaudRate = 115200

// DeviceNameMarker is the substring a unit includes in its PING reply.
const DeviceNameMarker = "ARIMU"

// Command identifies a request. It is always payload[0].
type Command byte

// Command codes recognized by the unit firmware.
const (
	// CmdStatus reports current state and error bitmask
	CmdStatus Command = 0

	// CmdPing asks the unit to identify itself
	CmdPing Command = 1

	// CmdListFiles streams the bracketed file list
	CmdListFiles Command = 2

	// CmdGetFileData streams one file's header and content
	CmdGetFileData Command = 3

	// CmdDeleteFile removes one file from the SD card
	CmdDeleteFile Command = 4

	// CmdGetMicros reads the free-running microsecond counter
	CmdGetMicros Command = 5

	// CmdSetTime sets the RTC and echoes the time actually set
	CmdSetTime Command = 6

	// CmdGetTime reads the RTC
	CmdGetTime Command = 7

	// CmdStartStream starts IMU telemetry; samples arrive with this command ID
	CmdStartStream Command = 8

	// CmdStopStream stops IMU telemetry
	CmdStopStream Command = 9

	// CmdSetSubject sets the subject name used for new files
	CmdSetSubject Command = 10

	// CmdGetSubject reads the subject name
	CmdGetSubject Command = 11

	CmdStartExperiment     Command = 12
	CmdStopExperiment      Command = 13
	CmdStartDockingStation Command = 14
	CmdStopDockingStation  Command = 15
	CmdDockingStationPing  Command = 16
	CmdStartNormal         Command = 17
	CmdStopNormal          Command = 18
	CmdSetToNone           Command = 19

	// CmdCurrentFileName reads the name of the file currently being logged
	CmdCurrentFileName Command = 128
)

var commandNames = map[Command]string{
	CmdStatus:              "STATUS",
	CmdPing:                "PING",
	CmdListFiles:           "LISTFILES",
	CmdGetFileData:         "GETFILEDATA",
	CmdDeleteFile:          "DELETEFILE",
	CmdGetMicros:           "GETMICROS",
	CmdSetTime:             "SETTIME",
	CmdGetTime:             "GETTIME",
	CmdStartStream:         "STARTSTREAM",
	CmdStopStream:          "STOPSTREAM",
	CmdSetSubject:          "SETSUBJECT",
	CmdGetSubject:          "GETSUBJECT",
	CmdStartExperiment:     "STARTEXPT",
	CmdStopExperiment:      "STOPEXPT",
	CmdStartDockingStation: "STARTDOCKSTNCOMM",
	CmdStopDockingStation:  "STOPDOCKSTNCOMM",
	CmdDockingStationPing:  "DOCKSTNPING",
	CmdStartNormal:         "STARTNORMAL",
	CmdStopNormal:          "STOPNORMAL",
	CmdSetToNone:           "SETTONONE",
	CmdCurrentFileName:     "CURRENTFILENAME",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD(0x%02X)", byte(c))
}

// State is the firmware state reported in payload[1] of every reply.
type State byte

// Device states.
const (
	StateNone           State = 0
	StateBadError       State = 1
	StateNormal         State = 2
	StateExperiment     State = 3
	StateDockingStation State = 4
	StateStreaming      State = 5
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateBadError:
		return "BADERROR"
	case StateNormal:
		return "NORMAL"
	case StateExperiment:
		return "EXPERIMENT"
	case StateDockingStation:
		return "DOCKSTNCOMM"
	case StateStreaming:
		return "STREAMING"
	default:
		return fmt.Sprintf("STATE(%d)", byte(s))
	}
}

// FileFlag is the first data byte of GETFILEDATA and DELETEFILE replies.
type FileFlag byte

// File sub-flags.
const (
	FlagNoFile         FileFlag = 0
	FlagFileSearching  FileFlag = 1
	FlagFileHeader     FileFlag = 2
	FlagFileContent    FileFlag = 3
	FlagFileDeleted    FileFlag = 4
	FlagFileNotDeleted FileFlag = 5
)

func (f FileFlag) String() string {
	switch f {
	case FlagNoFile:
		return "NOFILE"
	case FlagFileSearching:
		return "FILESEARCHING"
	case FlagFileHeader:
		return "FILEHEADER"
	case FlagFileContent:
		return "FILECONTENT"
	case FlagFileDeleted:
		return "FILEDELETED"
	case FlagFileNotDeleted:
		return "FILENOTDELETED"
	default:
		return fmt.Sprintf("FLAG(%d)", byte(f))
	}
}

// ProgressComplete marks the final FILECONTENT chunk.
const ProgressComplete = 255

// Payload data sizes.
const (
	// TimeFieldCount is the number of u32 fields in a SETTIME/GETTIME body
	TimeFieldCount = 7

	// TimeDataSize is the size of the seven time fields (28 bytes)
	TimeDataSize = TimeFieldCount * 4

	// TimeReplySize is TimeDataSize plus the u32 microsecond counter (32 bytes)
	TimeReplySize = TimeDataSize + 4

	// FileHeaderDataSize is FLAG(1) + TOTAL_SIZE(4)
	FileHeaderDataSize = 5

	// FileContentHeaderSize is FLAG(1) + PROGRESS(1)
	FileContentHeaderSize = 2

	// SampleSize is the size of one streamed telemetry sample (20 bytes)
	SampleSize = 20
)
