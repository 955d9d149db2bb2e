// Package wasmtest assembles small valid binary modules for tests.
package wasmtest

import (
	"github.com/wippyai/wasmnoise/wasm"
	"github.com/wippyai/wasmnoise/wasm/internal/binary"
)

// Module describes a module in which every function takes no parameters and
// returns f32 zero.
type Module struct {
	// Funcs are exported under their own names.
	Funcs []string
	// ImportMemory imports env.memory with MemoryPages minimum pages instead
	// of defining a memory.
	ImportMemory bool
	MemoryPages  uint32
	ExportMemory bool
}

const (
	funcTypeByte = 0x60
	valTypeF32   = 0x7d
	opF32Const   = 0x43
	opEnd        = 0x0b
)

// Bytes encodes the module.
func (m Module) Bytes() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(wasm.Magic)
	w.WriteU32LE(wasm.Version)

	w.Section(wasm.SectionType, func(s *binary.Writer) {
		s.WriteU32(1)
		s.Byte(funcTypeByte)
		s.WriteU32(0)
		s.WriteU32(1)
		s.Byte(valTypeF32)
	})

	if m.ImportMemory {
		w.Section(wasm.SectionImport, func(s *binary.Writer) {
			s.WriteU32(1)
			s.WriteName("env")
			s.WriteName("memory")
			s.Byte(byte(wasm.KindMemory))
			s.Byte(0)
			s.WriteU32(m.MemoryPages)
		})
	}

	w.Section(wasm.SectionFunction, func(s *binary.Writer) {
		s.WriteU32(uint32(len(m.Funcs)))
		for range m.Funcs {
			s.WriteU32(0)
		}
	})

	if !m.ImportMemory && (m.MemoryPages > 0 || m.ExportMemory) {
		w.Section(wasm.SectionMemory, func(s *binary.Writer) {
			s.WriteU32(1)
			s.Byte(0)
			s.WriteU32(m.MemoryPages)
		})
	}

	w.Section(wasm.SectionExport, func(s *binary.Writer) {
		count := len(m.Funcs)
		if m.ExportMemory {
			count++
		}
		s.WriteU32(uint32(count))
		for i, name := range m.Funcs {
			s.WriteName(name)
			s.Byte(byte(wasm.KindFunc))
			s.WriteU32(uint32(i))
		}
		if m.ExportMemory {
			s.WriteName("memory")
			s.Byte(byte(wasm.KindMemory))
			s.WriteU32(0)
		}
	})

	w.Section(wasm.SectionCode, func(s *binary.Writer) {
		s.WriteU32(uint32(len(m.Funcs)))
		for range m.Funcs {
			body := []byte{0, opF32Const, 0, 0, 0, 0, opEnd}
			s.WriteU32(uint32(len(body)))
			s.WriteBytes(body)
		}
	})

	return w.Bytes()
}
