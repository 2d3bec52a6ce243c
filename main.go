package main

import "adibuild/internal/cli"

func main() {
	cli.Main()
}
