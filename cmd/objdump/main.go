// objdump prints a ccvm image: its header fields, then a disassembly.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"ccvm/assembler"

	"github.com/k0kubun/pp/v3"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	raw := flag.Bool("raw", false, "Print the decoded image structure instead of a listing")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: objdump [-raw] [image]\n\nReads standard input when no image is named.\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	commonlog.Configure(0, nil)
	log := commonlog.GetLogger("ccvm.objdump")

	var r io.Reader = os.Stdin
	if flag.NArg() == 1 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Errorf("%s", err)
			os.Exit(1)
		}
		r = bytes.NewReader(data)
	}

	img, err := assembler.Read(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objdump: %v\n", err)
		os.Exit(1)
	}
	if *raw {
		printer := pp.New()
		printer.SetColoringEnabled(false)
		printer.Println(img)
		return
	}
	fmt.Print(img.Listing())
}
