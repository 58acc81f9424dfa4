package main

import "github.com/vietddude/somicard/internal/cli"

func main() {
	cli.Execute()
}
