package main

import "github.com/JohnPlummer/jp-go-access/internal/cli"

func main() {
	cli.Execute()
}
