package main

import "github.com/thlee33/ai-sql-map/cmd"

func main() {
	cmd.Execute()
}
