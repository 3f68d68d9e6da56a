package main

import "github.com/agent462/drove/cmd"

func main() {
	cmd.Execute()
}
