package main

import "kaspa-price-alerts/internal/cli"

func main() {
	cli.Execute()
}
