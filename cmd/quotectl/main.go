package main

import "github.com/noah-isme/flyer-quote/internal/cli"

func main() {
	cli.Execute()
}
