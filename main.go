package main

import "github.com/nicklasfrahm/ringctl/cmd"

func main() {
	cmd.Execute()
}
