package main

import (
	"fmt"
	"os"

	"github.com/searchktools/reactor-server/app"
	"github.com/searchktools/reactor-server/config"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <port> <num-workers>\n", os.Args[0])
		os.Exit(1)
	}

	cfg := config.New()
	if err := cfg.LoadFile("server.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	if err := cfg.ParseArgs(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\nUsage: %s <port> <num-workers>\n",
			os.Args[0], err, os.Args[0])
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}

	// Serves until a /quit request or a termination signal.
	a.Run()
}
