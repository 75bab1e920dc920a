package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = cmdInfo(os.Args[2:])
	case "fields":
		err = cmdFields(os.Args[2:])
	case "read":
		err = cmdRead(os.Args[2:])
	case "write":
		err = cmdWrite(os.Args[2:])
	case "narrow":
		err = cmdNarrow(os.Args[2:])
	case "freelist":
		err = cmdFreelist(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "types":
		err = cmdTypes(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `vmscope: out-of-process VM heap inspector

Usage:
  vmscope info     <target>                       Print target, codec and schema summary
  vmscope fields   <target> [--type T] [--addr A]   Dump compiled fields and values
  vmscope read     <target> --addr A [--width W]    Raw typed read (W = 1|2|4|8|ptr|cstr)
  vmscope write    <target> --field T::f --value V  Write a field (live targets with --writable)
  vmscope narrow   [<target>] --decode N | --encode A  Narrow reference codec
  vmscope freelist <target> --op OP [--size N]      Free-list dictionary queries
  vmscope disasm   <target> --addr A --len N        Disassemble target code
  vmscope types    <target> --out <file>            Export the type database as JSON

Target flags:
  --core <path>         ELF core file
  --exec <path>         Executable or shared object (symbols, missing pages)
  --bias <n>            Load bias of --exec (auto-detected for --pid)
  --pid <n>             Stopped live process
  --writable            Open --pid memory for writing
  --image <path>        Raw memory image, mapped at --base
  --base <n>            Base address of --image
  --arch <name>         amd64, arm64 or 386 (default from ELF, else amd64)
  --types <file>        Type database JSON
  --vmstructs           Read the type database from the target (needs --exec)
  --narrow-base <n>     Override narrow-oop base (with --narrow-shift)
  --narrow-shift <n>    Override narrow-oop shift
  --strict              Fail on first structural error
  --max-steps <n>       Global loop cap

Environment:
  VMSCOPE_DEBUG=1       Dump compile diagnostics to stderr
`)
}
