package main

import "github.com/devopsext/greeter/cmd"

func main() {
	cmd.Execute()
}
