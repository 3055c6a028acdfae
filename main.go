package main

import "github.com/kebairia/invbackup/cmd"

func main() {
	cmd.Execute()
}
