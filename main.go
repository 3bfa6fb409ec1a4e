package main

import "github.com/lbarthel/tubewatch/cmd"

func main() {
	cmd.Execute()
}
