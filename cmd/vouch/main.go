package main

import "github.com/vouch-network/vouch/internal/cli"

func main() {
	cli.Execute()
}
