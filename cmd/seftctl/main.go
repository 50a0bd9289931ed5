package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/seftconsumer/internal/seftctl"
)

func main() {
	c := &seftctl.CLI{Stdout: os.Stdout, Stderr: os.Stderr, Stdin: os.Stdin}
	os.Exit(c.Run(context.Background(), os.Args[1:]))
}
