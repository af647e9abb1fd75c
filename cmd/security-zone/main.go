package main

import "github.com/oshokin/security-zone/cmd/security-zone/cmd"

func main() {
	cmd.Execute()
}
