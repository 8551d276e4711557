package main

import "github.com/toba/linsync/cmd"

func main() {
	cmd.Execute()
}
