package simd

import (
	"os"
	"runtime"
	"strings"
)

// ISA identifies the CPU feature level detected at init. It only selects a
// kernel family (see Kernels): there are no hand-written vector paths, and
// every ISA other than Generic runs the same portable unrolled Go loops.
type ISA uint8

const (
	Generic ISA = iota // sequential reference loops
	NEON               // arm64 ASIMD
	SVE2               // arm64 scalable vectors
	AVX2               // amd64 AVX2 with FMA
	AVX512             // amd64 AVX-512 F+BW
)

var isaNames = [...]string{
	Generic: "generic",
	NEON:    "neon",
	SVE2:    "sve2",
	AVX2:    "avx2",
	AVX512:  "avx512",
}

func (i ISA) String() string {
	if int(i) < len(isaNames) {
		return isaNames[i]
	}
	return "unknown"
}

// Kernel families bound by bindKernels.
const (
	KernelsGeneric  = "generic"
	KernelsUnrolled = "unrolled"
)

// Kernels returns the kernel family bound for i.
func (i ISA) Kernels() string {
	if i == Generic {
		return KernelsGeneric
	}
	return KernelsUnrolled
}

// ParseISA parses a case-insensitive ISA name.
func ParseISA(s string) (ISA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range isaNames {
		if name == s {
			return ISA(i), true
		}
	}
	return Generic, false
}

// OverrideEnv names the environment variable that pins the ISA at init.
const OverrideEnv = "DGCNN_SIMD"

var (
	activeISA   ISA
	hasOverride bool

	// Set by the platform init before initCapabilities runs.
	hasASIMD    bool
	hasSVE2     bool
	hasAVX2     bool
	hasAVX512F  bool
	hasAVX512BW bool
)

func initCapabilities() {
	activeISA = bestISA()
	if isa, ok := ParseISA(os.Getenv(OverrideEnv)); ok && available(isa) {
		activeISA, hasOverride = isa, true
	}
	bindKernels(activeISA)
}

func available(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case NEON:
		return hasASIMD
	case SVE2:
		return hasSVE2
	case AVX2:
		return hasAVX2
	case AVX512:
		return hasAVX512F && hasAVX512BW
	}
	return false
}

// bestISA prefers the widest available unit. SVE2 is skipped on darwin,
// where it is reported but not usable from user space.
func bestISA() ISA {
	var order []ISA
	switch runtime.GOARCH {
	case "amd64":
		order = []ISA{AVX512, AVX2}
	case "arm64":
		if runtime.GOOS != "darwin" {
			order = append(order, SVE2)
		}
		order = append(order, NEON)
	}
	for _, isa := range order {
		if available(isa) {
			return isa
		}
	}
	return Generic
}

// SetISA rebinds the kernels to isa if the CPU supports it. Tests only;
// it must not race with kernel calls.
func SetISA(isa ISA) bool {
	if !available(isa) {
		return false
	}
	activeISA = isa
	bindKernels(isa)
	return true
}

// ActiveISA returns the selected ISA.
func ActiveISA() ISA { return activeISA }

// IsOverridden reports whether DGCNN_SIMD selected the active ISA.
func IsOverridden() bool { return hasOverride }

// HasAVX2 reports AVX2 with FMA.
func HasAVX2() bool { return hasAVX2 }

// HasASIMD reports ARM64 NEON.
func HasASIMD() bool { return hasASIMD }
