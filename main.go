package main

import "github.com/gaurav-prasanna/newsletterpipe/cmd"

func main() {
	cmd.Execute()
}
