package main

import "github.com/probelab-dev/uiscout/pkg/cli"

func main() {
	cli.Execute()
}
