package main

import "github.com/goplus/cbt/cmd/cbt/internal"

func main() {
	internal.Execute()
}
