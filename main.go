package main

import "github.com/viktsys/tweetimpact/cmd"

func main() {
	cmd.Execute()
}
