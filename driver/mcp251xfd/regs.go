package mcp251xfd

// Register offsets, from the MCP251XFD datasheet's SFR map (table
// references kept in original_source/drivers/can/can_mcp251xfd.h).
const (
	regCON    = 0x00
	regNBTCFG = 0x04
	regDBTCFG = 0x08
	regTDC    = 0x0c
	regINT    = 0x1c
	regTREC   = 0x34
	regBDIAG1 = 0x3c

	regTEFCON = 0x40
	regTEFSTA = 0x44
	regTEFUA  = 0x48

	regTXQCON = 0x50
	regTXQSTA = 0x54
	regTXQUA  = 0x58

	regFLTCON0 = 0x1d0
	regOSC     = 0xe00
	regIOCON   = 0xe04
	regCRCReg  = 0xe08
	regECCCON  = 0xe0c
	regECCSTAT = 0xe10
	regDEVID   = 0xe14
)

// fifoconReg returns the FIFOCONn register address for FIFO index n (n>=1).
func fifoconReg(n int) uint16 { return 0x50 + 12*uint16(n) }

// fifostaReg returns the FIFOSTAn register address for FIFO index n (n>=1).
func fifostaReg(n int) uint16 { return 0x54 + 12*uint16(n) }

// fifouaReg returns the FIFOUAn register address for FIFO index n (n>=1).
func fifouaReg(n int) uint16 { return 0x58 + 12*uint16(n) }

func fltobjReg(i int) uint16  { return 0x1f0 + 8*uint16(i) }
func fltmaskReg(i int) uint16 { return 0x1f4 + 8*uint16(i) }
func fltconByteReg(m int) uint16 { return 0x1d0 + uint16(m) }

// CON register REQOP/OPMOD field values (Table "Operation Mode bits").
const (
	conModeMixed       = 0
	conModeSleep       = 1
	conModeIntLoopback = 2
	conModeListenOnly  = 3
	conModeConfig      = 4
	conModeExtLoopback = 5
	conModeCAN2_0      = 6
	conModeRestricted  = 7
)

// REQOP/OPMOD bit positions within the 32-bit CON word (3 bits each).
const (
	conREQOPShift = 24
	conREQOPMask  = 0x7 << conREQOPShift
	conOPMODShift = 21
	conOPMODMask  = 0x7 << conOPMODShift
)

// TDC register fields.
const (
	tdcModeShift = 16
	tdcModeMask  = 0x3 << tdcModeShift
	tdcModeDisabled = 0
	tdcModeManual   = 1
	tdcModeAuto     = 2
	tdcOffsetShift  = 8
	tdcOffsetMask   = 0x7f << tdcOffsetShift
)

// INT register bit layout: low 16 bits are flags (IF), high 16 bits are
// enables (IE), mirroring the datasheet's packed IE|IF 32-bit view.
const (
	intRXIF   = 1 << 0
	intTEFIF  = 1 << 1
	intIVMIF  = 1 << 11
	intWAKIF  = 1 << 12
	intCERRIF = 1 << 13
	intSERRIF = 1 << 14
	intMODIF  = 1 << 15

	// intClearableMask is the set of latched flags that must be written
	// back as 0 by the host to acknowledge.
	intClearableMask = intIVMIF | intWAKIF | intCERRIF | intSERRIF | intMODIF
)

// BDIAG1 bus-diagnostic bits.
const (
	bdiag1TXBOERR = 1 << 0
	bdiag1BERRMask = 0x3f << 8
)

// CRC-16/UMTS parameters (poly 0x8005, seed 0xFFFF), used by the
// READ_CRC/WRITE_CRC SPI transactions.
const (
	crcPoly = 0x8005
	crcSeed = 0xffff
)

// SPI instruction nibbles (bits 15:12 of the 16-bit command word).
const (
	instrReset   = 0x0
	instrWrite   = 0x2
	instrRead    = 0x3
	instrWriteCRC = 0xa
	instrReadCRC = 0xb
)

const ramBase = 0x400

// MaxFilters is the number of acceptance filters MCP251XFD supports.
const MaxFilters = 32

// mode-change timing, per can_mcp251xfd.h MCP251XFD_MODE_CHANGE_TIMEOUT_USEC.
const (
	modeChangeTimeoutRetries = 100
	modeChangePollInterval   = 2 // milliseconds
)

// IRQ storm protection, per MAX_INT_HANDLER_CALLS / INT_HANDLER_SLEEP_USEC.
const (
	maxIntHandlerCalls  = 10
	intHandlerSleepMsec = 10
)
