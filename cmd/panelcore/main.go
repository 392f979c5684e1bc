package main

import "panelcore/cmd"

func main() {
	cmd.Execute()
}
