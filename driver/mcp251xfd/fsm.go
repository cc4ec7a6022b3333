package mcp251xfd

import (
	"fmt"
	"runtime"
	"time"
)

// Mode is one of the controller's operating modes, encoded the way the
// CON register's REQOP/OPMOD fields encode it.
type Mode int

const (
	ModeMixed       Mode = conModeMixed // CAN-FD, aka "FD_MIXED"
	ModeSleep       Mode = conModeSleep
	ModeIntLoopback Mode = conModeIntLoopback
	ModeListenOnly  Mode = conModeListenOnly
	ModeConfig      Mode = conModeConfig
	ModeExtLoopback Mode = conModeExtLoopback
	ModeCAN2_0      Mode = conModeCAN2_0
	ModeRestricted  Mode = conModeRestricted
)

func (m Mode) String() string {
	switch m {
	case ModeMixed:
		return "fd-mixed"
	case ModeSleep:
		return "sleep"
	case ModeIntLoopback:
		return "int-loopback"
	case ModeListenOnly:
		return "listen-only"
	case ModeConfig:
		return "config"
	case ModeExtLoopback:
		return "ext-loopback"
	case ModeCAN2_0:
		return "can2.0"
	case ModeRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// Fsm drives the controller's mode machine: transitions out of CONFIG
// are requested by rewriting REQOP and polling OPMOD until it settles
// or a bounded timeout elapses.
type Fsm struct {
	codec   *Codec
	current Mode
	requested Mode
	tdco    int8
}

// NewFsm returns an Fsm that assumes the controller is in CONFIG mode,
// its state immediately after a hardware or SPI reset.
func NewFsm(codec *Codec) *Fsm {
	return &Fsm{codec: codec, current: ModeConfig, requested: ModeConfig}
}

// Current returns the last mode the controller was confirmed to be in.
func (fsm *Fsm) Current() Mode { return fsm.current }

// SetTDCOffset records the transmitter-delay-compensation offset used
// when entering FD-mixed mode.
func (fsm *Fsm) SetTDCOffset(offset int8) { fsm.tdco = offset }

// SetMode requests a transition to m. Idempotent: if m already equals
// the confirmed current mode, it issues no SPI writes and returns nil,
// per the mode-change-idempotence testable property.
func (fsm *Fsm) SetMode(m Mode, allowYield bool) error {
	if m == fsm.current {
		return nil
	}
	fsm.requested = m
	if err := fsm.setTDC(m); err != nil {
		return err
	}
	con, err := fsm.codec.ReadReg32(regCON)
	if err != nil {
		return fmt.Errorf("mcp251xfd: set_mode: %w", err)
	}
	con = con&^uint32(conREQOPMask) | uint32(m)<<conREQOPShift
	if err := fsm.codec.WritePlain32(regCON, con); err != nil {
		return fmt.Errorf("mcp251xfd: set_mode: %w", err)
	}
	if err := fsm.pollOpmod(m, allowYield); err != nil {
		return err
	}
	fsm.current = m
	return nil
}

func (fsm *Fsm) setTDC(m Mode) error {
	mode := uint32(tdcModeDisabled)
	if m == ModeMixed {
		mode = tdcModeAuto
	}
	v := mode<<tdcModeShift | (uint32(fsm.tdco)&0x7f)<<tdcOffsetShift
	return fsm.codec.WritePlain32(regTDC, v)
}

// pollOpmod ports mcp251xfd_reg_check_value_wtimeout: up to
// modeChangeTimeoutRetries attempts, modeChangePollInterval ms apart.
// Between attempts it always sleeps for the poll interval; when
// allowYield is true it also calls runtime.Gosched before sleeping.
func (fsm *Fsm) pollOpmod(want Mode, allowYield bool) error {
	for i := 0; i < modeChangeTimeoutRetries; i++ {
		con, err := fsm.codec.ReadReg32(regCON)
		if err != nil {
			return fmt.Errorf("mcp251xfd: set_mode: poll: %w", err)
		}
		opmod := Mode((con & conOPMODMask) >> conOPMODShift)
		if opmod == want {
			return nil
		}
		if allowYield {
			runtime.Gosched()
		}
		time.Sleep(modeChangePollInterval * time.Millisecond)
	}
	return fmt.Errorf("mcp251xfd: set_mode: %w", ErrTimeout)
}

// Errors for the unsupported CAN driver mode flags CAN_MODE_3_SAMPLES
// and CAN_MODE_ONE_SHOT. SetMode takes a single Mode value and has no
// mode-flag argument, so no method in this package returns them.
var (
	ErrMode3Samples = fmt.Errorf("mcp251xfd: CAN_MODE_3_SAMPLES: %w", ErrNotSupported)
	ErrModeOneShot  = fmt.Errorf("mcp251xfd: CAN_MODE_ONE_SHOT: %w", ErrNotSupported)
)
