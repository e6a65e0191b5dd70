// internal/dronecan/ids.go
package dronecan

// Data type ids and 64-bit schema signatures for the message types the
// bootloader speaks. These values define the wire protocol and MUST NOT
// be configurable.

const (
	NodeStatusID        uint16 = 341
	NodeStatusSignature uint64 = 0x0f0868d0c1a7c6f1

	GetNodeInfoID        uint16 = 1
	GetNodeInfoSignature uint64 = 0xee468a8121c46a9e

	RestartNodeID        uint16 = 5
	RestartNodeSignature uint64 = 0x569e05394a3017f0

	FileReadID        uint16 = 48
	FileReadSignature uint64 = 0x8dcdca939f33f678

	BeginFirmwareUpdateID        uint16 = 40
	BeginFirmwareUpdateSignature uint64 = 0xb7d725df72724126

	DynamicNodeIDAllocationID        uint16 = 1
	DynamicNodeIDAllocationSignature uint64 = 0x0b2a812620a11d40

	LogMessageID        uint16 = 16383
	LogMessageSignature uint64 = 0xd654a48e0c90faee
)

// Protocol-fixed sizes and timing constants.
const (
	// ReadChunk is the payload size of one FileRead response; shorter
	// means end of file.
	ReadChunk = 256

	// PathMax bounds a remote file path.
	PathMax = 200

	// UniqueIDSize is the silicon unique id length carried in
	// allocation and node info messages.
	UniqueIDSize = 16

	// Dynamic node id allocation timing.
	AllocationMinRequestPeriodMs  = 600
	AllocationMaxFollowupDelayMs  = 400
	AllocationMaxUniqueIDPerFrame = 6

	// RestartNode requests must carry this magic in their low 40 bits.
	RestartNodeMagic uint64 = 0xACCE551B1E
)

// NodeStatus health codes.
const (
	HealthOK       uint8 = 0
	HealthWarning  uint8 = 1
	HealthError    uint8 = 2
	HealthCritical uint8 = 3
)

// NodeStatus modes. The bootloader only ever reports maintenance or
// software update.
const (
	ModeOperational    uint8 = 0
	ModeInitialization uint8 = 1
	ModeMaintenance    uint8 = 2
	ModeSoftwareUpdate uint8 = 3
	ModeOffline        uint8 = 7
)

// BeginFirmwareUpdate response error codes.
const (
	BeginFirmwareUpdateErrorOK          uint8 = 0
	BeginFirmwareUpdateErrorInvalidMode uint8 = 1
	BeginFirmwareUpdateErrorInProgress  uint8 = 2
	BeginFirmwareUpdateErrorUnknown     uint8 = 255
)

// LogMessage levels.
const (
	LogLevelDebug   uint8 = 0
	LogLevelInfo    uint8 = 1
	LogLevelWarning uint8 = 2
	LogLevelError   uint8 = 3
)
