package main

import (
	"twelvecp/internal/cli"
)

func main() {
	cli.Execute()
}
