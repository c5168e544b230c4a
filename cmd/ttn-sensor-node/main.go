package main

import "github.com/brocaar/ttn-sensor-node/cmd/ttn-sensor-node/cmd"

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
