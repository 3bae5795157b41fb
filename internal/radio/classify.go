package radio

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"

	"firestige.xyz/wisniff/internal/core"
)

// ClassifyFrame derives the frame kind from the 802.11 frame-control field.
func ClassifyFrame(frame []byte) core.FrameKind {
	if len(frame) == 0 {
		return core.KindOther
	}
	// Type sits in bits 2-3 of the first frame-control byte; gopacket encodes
	// Dot11Type as fc>>2 with the main type in the low two bits.
	switch layers.Dot11Type(frame[0] >> 2).MainType() {
	case layers.Dot11TypeMgmt:
		return core.KindManagement
	case layers.Dot11TypeCtrl:
		return core.KindControl
	case layers.Dot11TypeData:
		return core.KindData
	default:
		return core.KindOther
	}
}

// PrefilterProgram is a classic BPF program over radiotap-encapsulated frames
// that accepts management and data frames and rejects everything else. It
// lets the kernel discard control traffic before it reaches user space; the
// FrameSource still applies the same filter itself.
func PrefilterProgram(snaplen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		// X = radiotap it_len (little-endian u16 at offset 2)
		bpf.LoadAbsolute{Off: 3, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpShiftLeft, Val: 8},
		bpf.TAX{},
		bpf.LoadAbsolute{Off: 2, Size: 1},
		bpf.ALUOpX{Op: bpf.ALUOpOr},
		bpf.TAX{},
		// A = frame type bits of the first frame-control byte
		bpf.LoadIndirect{Off: 0, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: 0x0c},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x00, SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x08, SkipTrue: 1},
		bpf.RetConstant{Val: snaplen},
		bpf.RetConstant{Val: 0},
	}
}

// AssemblePrefilter returns PrefilterProgram in raw form for drivers that
// install filters directly.
func AssemblePrefilter(snaplen uint32) ([]bpf.RawInstruction, error) {
	raw, err := bpf.Assemble(PrefilterProgram(snaplen))
	if err != nil {
		return nil, fmt.Errorf("assemble prefilter: %w", err)
	}
	return raw, nil
}
