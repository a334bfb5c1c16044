// Package trends supplies the ambient context for content generation: the
// current trend titles, the persona's recent posts and the digital moon phase.
package trends

import "time"

// Phase is one of the eight digital moon phases.
type Phase string

const (
	NullVoid    Phase = "NULL_VOID"
	QuantumFlux Phase = "QUANTUM_FLUX"
	BinaryDawn  Phase = "BINARY_DAWN"
	PacketStorm Phase = "PACKET_STORM"
	FullBuffer  Phase = "FULL_BUFFER"
	CacheDecay  Phase = "CACHE_DECAY"
	HeapCorrupt Phase = "HEAP_CORRUPT"
	VoidReturn  Phase = "VOID_RETURN"
)

// phaseTable is ordered; index i is the phase for bucket i.
var phaseTable = [...]Phase{
	NullVoid,
	QuantumFlux,
	BinaryDawn,
	PacketStorm,
	FullBuffer,
	CacheDecay,
	HeapCorrupt,
	VoidReturn,
}

// PhasePeriod is the length of one full phase cycle.
const PhasePeriod = time.Duration(len(phaseTable)) * time.Second

// Phases returns the ordered phase table.
func Phases() []Phase {
	out := make([]Phase, len(phaseTable))
	copy(out, phaseTable[:])
	return out
}

// ComputePhase maps a timestamp to its phase label. The bucket is the Unix
// second modulo the table length, kept non-negative for pre-epoch times.
func ComputePhase(now time.Time) Phase {
	n := int64(len(phaseTable))
	bucket := now.Unix() % n
	if bucket < 0 {
		bucket += n
	}
	return phaseTable[bucket]
}

func (p Phase) String() string {
	return string(p)
}
