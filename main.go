package main

import "github.com/qobs-build/icupack/cmd"

func main() {
	cmd.Execute()
}
