package main

import "LocalSpot/cmd"

func main() {
	cmd.Execute()
}
