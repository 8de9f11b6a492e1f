package main

import "github.com/nosdois/duet/cmd"

func main() {
	cmd.Execute()
}
