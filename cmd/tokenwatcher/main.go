package main

import (
	"token-price-tracker/internal/cli"
)

func main() {
	cli.Execute()
}
