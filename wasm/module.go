package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasmnoise/wasm/internal/binary"
)

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs. Sections other than custom ones must appear in canonical
// order.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
	SectionTag       byte = 13
)

// Parsing errors returned by Inspect.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ExternKind identifies the type of an imported or exported item.
type ExternKind byte

const (
	KindFunc   ExternKind = 0
	KindTable  ExternKind = 1
	KindMemory ExternKind = 2
	KindGlobal ExternKind = 3
	KindTag    ExternKind = 4
)

func (k ExternKind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	case KindTag:
		return "tag"
	}
	return fmt.Sprintf("kind(0x%02x)", byte(k))
}

// Export describes an exported item.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Import describes an imported item. MinPages is set for memory imports.
type Import struct {
	Module   string
	Name     string
	Kind     ExternKind
	MinPages uint64
}

// Info is the import and export surface of a module.
type Info struct {
	Imports []Import
	Exports []Export
}

// FuncExports returns the names of exported functions in declaration order.
func (m *Info) FuncExports() []string {
	var names []string
	for _, e := range m.Exports {
		if e.Kind == KindFunc {
			names = append(names, e.Name)
		}
	}
	return names
}

// MemoryImport returns the first imported memory, if any.
func (m *Info) MemoryImport() (Import, bool) {
	for _, imp := range m.Imports {
		if imp.Kind == KindMemory {
			return imp, true
		}
	}
	return Import{}, false
}

// ReadExports lists the exports of a binary module.
func ReadExports(data []byte) ([]Export, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	return info.Exports, nil
}

// Inspect validates the module header, walks the section list and decodes
// the import and export sections. Other sections are skipped unparsed.
func Inspect(data []byte) (*Info, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	info := &Info{}
	var lastSectionOrder int

	for r.Len() > 0 {
		sectionID, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order == 0 {
				return nil, r.WrapError("section header", fmt.Errorf("unknown section id %d", sectionID))
			}
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := binary.NewReader(sectionData)
		switch sectionID {
		case SectionImport:
			if info.Imports, err = parseImportSection(sr); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
		case SectionExport:
			if info.Exports, err = parseExportSection(sr); err != nil {
				return nil, fmt.Errorf("export section: %w", err)
			}
		}
	}
	return info, nil
}

func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6 // after Memory, before Global
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11 // before Code
	case SectionCode:
		return 12
	case SectionData:
		return 13
	}
	return 0
}

func parseExportSection(r *binary.Reader) ([]Export, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	exports := make([]Export, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if ExternKind(kind) > KindTag {
			return nil, fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		exports = append(exports, Export{Name: name, Kind: ExternKind(kind), Index: idx})
	}
	return exports, nil
}

func parseImportSection(r *binary.Reader) ([]Import, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	imports := make([]Import, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}

		imp := Import{Module: module, Name: name, Kind: ExternKind(kind)}
		switch imp.Kind {
		case KindFunc:
			_, err = r.ReadU32()
		case KindTable:
			if err = skipValType(r); err == nil {
				_, err = readLimits(r)
			}
		case KindMemory:
			imp.MinPages, err = readLimits(r)
		case KindGlobal:
			if err = skipValType(r); err == nil {
				_, err = r.ReadByte()
			}
		case KindTag:
			if _, err = r.ReadByte(); err == nil {
				_, err = r.ReadU32()
			}
		default:
			return nil, fmt.Errorf("unknown import kind: %d", kind)
		}
		if err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

const (
	limitsHasMax   = 0x01
	limitsMemory64 = 0x04
)

// readLimits returns the minimum and skips the optional maximum.
func readLimits(r *binary.Reader) (uint64, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return 0, io.ErrUnexpectedEOF
	}
	read := func() (uint64, error) {
		if flags&limitsMemory64 != 0 {
			return r.ReadU64()
		}
		v, err := r.ReadU32()
		return uint64(v), err
	}
	minVal, err := read()
	if err != nil {
		return 0, err
	}
	if flags&limitsHasMax != 0 {
		if _, err := read(); err != nil {
			return 0, err
		}
	}
	return minVal, nil
}

// Reference type prefixes carrying an explicit heap type.
const (
	refNullPrefix = 0x63
	refPrefix     = 0x64
)

// skipValType skips a value or reference type.
func skipValType(r *binary.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return io.ErrUnexpectedEOF
	}
	if b == refNullPrefix || b == refPrefix {
		_, err = r.ReadU64() // s33 heap type
	}
	return err
}
