package main

import "llm-price-tracker/internal/cli"

func main() {
	cli.Execute()
}
