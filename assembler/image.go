package assembler

import (
	"fmt"
	"io"

	"ccvm/datatypes"
	"ccvm/memory"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var ImageMagic = [4]byte{'C', 'V', 'M', 'I'}

// canonical encoding keeps images of the same program byte-identical,
// apart from the build id
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("assembler: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is an assembled program ready to be loaded into prog.
type Image struct {
	Magic  [4]byte                      `cbor:"1,keyasint"`
	ID     string                       `cbor:"2,keyasint"`
	Name   string                       `cbor:"3,keyasint,omitempty"`
	Origin datatypes.Address            `cbor:"4,keyasint"`
	Entry  datatypes.Address            `cbor:"5,keyasint"`
	Words  []datatypes.Word             `cbor:"6,keyasint"`
	Lines  map[datatypes.Address]int    `cbor:"7,keyasint,omitempty"` // instruction address -> source line
	Labels map[string]datatypes.Address `cbor:"8,keyasint,omitempty"`
	// Relocs lists the instructions whose address field names a label.
	Relocs []datatypes.Address `cbor:"9,keyasint,omitempty"`
	// Externs maps instructions to labels left for the linker.
	Externs map[datatypes.Address]string `cbor:"10,keyasint,omitempty"`
}

// Image snapshots the assembled words between the origin and the highest
// address written.
func (a *Assembler) Image() *Image {
	img := &Image{
		Magic:  ImageMagic,
		ID:     uuid.New().String(),
		Name:   a.Name,
		Origin: a.origin,
		Entry:  a.Entry(),
		Lines:  make(map[datatypes.Address]int, len(a.lines)),
		Labels: a.Labels(),
	}
	for addr := a.origin; addr < a.highest; addr += datatypes.WordSize {
		w, _ := a.mem.Word(addr)
		img.Words = append(img.Words, w)
	}
	for addr, line := range a.lines {
		img.Lines[addr] = line
	}
	img.Relocs = append(img.Relocs, a.relocs...)
	for _, link := range a.fixups {
		if img.Externs == nil {
			img.Externs = make(map[datatypes.Address]string)
		}
		img.Externs[link.from] = link.name
	}
	return img
}

// FunctionNames inverts the label table for naming activation records.
func (img *Image) FunctionNames() map[datatypes.Address]string {
	names := make(map[datatypes.Address]string, len(img.Labels))
	for name, addr := range img.Labels {
		if prev, taken := names[addr]; !taken || name < prev {
			names[addr] = name
		}
	}
	return names
}

// Load force-writes the image into prog. Nothing is written if it does not
// fit or still has unresolved references.
func (img *Image) Load(mem *memory.Memory) error {
	if len(img.Externs) > 0 {
		return fmt.Errorf("%w: image has %d unresolved references, link it first", datatypes.ErrAssembler, len(img.Externs))
	}
	prog := mem.Layout().Prog
	size := len(img.Words) * datatypes.WordSize
	if size > 0 && !prog.Contains(img.Origin, size) {
		return fmt.Errorf("%w: image of %d bytes at 0x%04x does not fit in prog", datatypes.ErrAssembler, size, img.Origin)
	}
	for i, w := range img.Words {
		addr := img.Origin + datatypes.Address(i*datatypes.WordSize)
		if err := mem.ForceSet(addr, datatypes.UInt, float64(w)); err != nil {
			return err
		}
	}
	return nil
}

func (img *Image) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(img)
}

func (img *Image) Write(w io.Writer) error {
	data, err := img.Marshal()
	if err != nil {
		return fmt.Errorf("assembler: marshal image: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("assembler: unmarshal image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("assembler: bad image magic %q", img.Magic[:])
	}
	return &img, nil
}

func Read(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalImage(data)
}
