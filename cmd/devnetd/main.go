package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
)

// Exit codes: 0 normal, 1 startup error, 2 runtime panic.
func main() {
	os.Exit(execute())
}
