package main

import "rterm/cmd"

func main() {
	cmd.Execute()
}
