package main

import "github.com/ppiankov/cdabench/internal/cli"

func main() {
	cli.Execute()
}
