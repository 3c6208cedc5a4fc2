// Package program defines the source format and the bytecode of the programs
// run by the ledger.
//
// A program source is a list of lines. Empty lines and lines starting with '#'
// are ignored, except for the pragma that sets the version:
//
//	#pragma version 8
//	program escrow
//	bind receiver 3kY8...
//	bind max 1000
//
// The program line selects a template packaged with the node and every bind
// line sets a parameter of the template. Compilation is deterministic: the same
// template with the same parameters always produces the same bytecode, hence
// the same address.
package program

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bitpond/appkit/core/txn"
	"golang.org/x/xerrors"
)

// Version is the highest version of the source format supported.
const Version = 8

var addressPrefix = []byte("Program")

// Params are the parameters bound into a program.
type Params map[string]string

// Keys returns the names of the parameters in lexicographic order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Program is the result of a compilation.
type Program struct {
	Version  uint64
	Template string
	Params   Params
	Bytecode []byte
}

// Address returns the address of the program.
func (p Program) Address() txn.Address {
	return Address(p.Bytecode)
}

// Compile parses the source and returns the program.
func Compile(source string) (Program, error) {
	prog := Program{
		Params: Params{},
	}

	scanner := bufio.NewScanner(strings.NewReader(source))

	for num := 1; scanner.Scan(); num++ {
		err := prog.parseLine(strings.TrimSpace(scanner.Text()))
		if err != nil {
			return Program{}, xerrors.Errorf("line %d: %v", num, err)
		}
	}

	err := scanner.Err()
	if err != nil {
		return Program{}, xerrors.Errorf("failed to read source: %v", err)
	}

	if prog.Version == 0 {
		return Program{}, xerrors.New("missing version pragma")
	}

	if prog.Template == "" {
		return Program{}, xerrors.New("missing program directive")
	}

	prog.Bytecode = Encode(prog.Version, prog.Template, prog.Params)

	return prog, nil
}

func (p *Program) parseLine(line string) error {
	if strings.HasPrefix(line, "#pragma") {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[1] != "version" {
			return xerrors.Errorf("malformed pragma '%s'", line)
		}

		if p.Version != 0 {
			return xerrors.New("duplicate version pragma")
		}

		version, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return xerrors.Errorf("malformed version '%s'", fields[2])
		}

		if version == 0 || version > Version {
			return xerrors.Errorf("unsupported version %d", version)
		}

		p.Version = version

		return nil
	}

	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	fields := strings.Fields(line)

	switch fields[0] {
	case "program":
		if len(fields) != 2 {
			return xerrors.Errorf("malformed directive '%s'", line)
		}

		if p.Template != "" {
			return xerrors.New("duplicate program directive")
		}

		p.Template = fields[1]
	case "bind":
		if len(fields) != 3 {
			return xerrors.Errorf("malformed directive '%s'", line)
		}

		_, found := p.Params[fields[1]]
		if found {
			return xerrors.Errorf("duplicate parameter '%s'", fields[1])
		}

		p.Params[fields[1]] = fields[2]
	default:
		return xerrors.Errorf("unknown directive '%s'", fields[0])
	}

	return nil
}

// Render returns the source of the template bound to the parameters.
// Compiling the result gives back the same template and parameters.
func Render(template string, params Params) string {
	var b strings.Builder

	fmt.Fprintf(&b, "#pragma version %d\n", Version)
	fmt.Fprintf(&b, "program %s\n", template)

	for _, key := range params.Keys() {
		fmt.Fprintf(&b, "bind %s %s\n", key, params[key])
	}

	return b.String()
}

// Address returns the address of the bytecode. It is the sender of the
// transactions authorized by the program as a logic signature.
func Address(bytecode []byte) txn.Address {
	return txn.Digest(addressPrefix, bytecode)
}
