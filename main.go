package main

import "github.com/AvaProtocol/hybrid-compute/cmd"

func main() {
	cmd.Execute()
}
