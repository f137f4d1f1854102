package main

import "github.com/indigocalifornia/mvgen/internal/cli"

func main() {
	cli.Main()
}
