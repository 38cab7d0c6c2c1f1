package main

import "github.com/valign/valign/internal/cli"

func main() {
	cli.Main()
}
