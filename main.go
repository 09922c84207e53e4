package main

import "github.com/rob634/rmhtitiler-sub001/cmd"

func main() {
	cmd.Execute()
}
