package main

import "github.com/scidata/dstore/cmd"

func main() {
	cmd.Execute()
}
