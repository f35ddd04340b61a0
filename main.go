package main

import "dnsflow/cmd"

func main() {
	cmd.Execute()
}
