package main

import "github.com/estudolab/estudai/cmd"

func main() {
	cmd.Execute()
}
