package program

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

var magic = []byte{0x61, 0x70, 0x6b, 0x01}

// Encode returns the bytecode of the template and the parameters. Parameters
// are written in lexicographic order of their names.
func Encode(version uint64, template string, params Params) []byte {
	buffer := new(bytes.Buffer)
	buffer.Write(magic)

	writeUvarint(buffer, version)
	writeString(buffer, template)
	writeUvarint(buffer, uint64(len(params)))

	for _, key := range params.Keys() {
		writeString(buffer, key)
		writeString(buffer, params[key])
	}

	return buffer.Bytes()
}

// Decode returns the program of the bytecode. It fails if the bytecode is not
// the canonical encoding of the program.
func Decode(bytecode []byte) (Program, error) {
	if !bytes.HasPrefix(bytecode, magic) {
		return Program{}, xerrors.New("invalid magic")
	}

	r := bytes.NewReader(bytecode[len(magic):])

	version, err := binary.ReadUvarint(r)
	if err != nil {
		return Program{}, xerrors.Errorf("failed to read version: %v", err)
	}

	if version == 0 || version > Version {
		return Program{}, xerrors.Errorf("unsupported version %d", version)
	}

	template, err := readString(r)
	if err != nil {
		return Program{}, xerrors.Errorf("failed to read template: %v", err)
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return Program{}, xerrors.Errorf("failed to read params: %v", err)
	}

	params := Params{}
	for i := uint64(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return Program{}, xerrors.Errorf("failed to read param: %v", err)
		}

		value, err := readString(r)
		if err != nil {
			return Program{}, xerrors.Errorf("failed to read param: %v", err)
		}

		params[key] = value
	}

	if r.Len() > 0 {
		return Program{}, xerrors.Errorf("trailing %d bytes", r.Len())
	}

	if !bytes.Equal(Encode(version, template, params), bytecode) {
		return Program{}, xerrors.New("bytecode is not canonical")
	}

	prog := Program{
		Version:  version,
		Template: template,
		Params:   params,
		Bytecode: append([]byte{}, bytecode...),
	}

	return prog, nil
}

func writeUvarint(buffer *bytes.Buffer, v uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	buffer.Write(tmp[:n])
}

func writeString(buffer *bytes.Buffer, s string) {
	writeUvarint(buffer, uint64(len(s)))
	buffer.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}

	if size > uint64(r.Len()) {
		return "", xerrors.Errorf("length %d out of bounds", size)
	}

	data := make([]byte, size)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return "", err
	}

	return string(data), nil
}
