package main

import "github.com/agenthive/hivemem/cmd"

func main() {
	cmd.Execute()
}
