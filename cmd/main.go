package main

import "github.com/canopy-network/aedpos/cmd/cli"

func main() {
	cli.Execute()
}
