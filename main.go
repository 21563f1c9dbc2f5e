package main

import "github.com/secinto/httpobservatory/cmd"

func main() {
	cmd.Execute()
}
