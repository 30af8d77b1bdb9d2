package main

import "penwatch/internal/cli"

func main() {
	cli.Execute()
}
