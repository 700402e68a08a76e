package main

import "github.com/timvw/promptbench/cmd"

func main() {
	cmd.Execute()
}
