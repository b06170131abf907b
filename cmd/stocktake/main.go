package main

import "github.com/joseph-ayodele/stocktake/cmd/stocktake/cmd"

func main() {
	cmd.Execute()
}
