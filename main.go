package main

import "github.com/yoki/data-agency/cmd"

func main() {
	cmd.Execute()
}
