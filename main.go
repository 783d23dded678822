package main

import "github.com/shouni/go-title-grabber/cmd"

func main() {
	cmd.Execute()
}
