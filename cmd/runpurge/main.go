package main

import "github.com/vietddude/runpurge/internal/cli"

func main() {
	cli.Execute()
}
