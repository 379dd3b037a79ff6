package main

import "github.com/hoppxi/wigo-brightness/internal/cmd"

func main() {
	cmd.Execute()
}
