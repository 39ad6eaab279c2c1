package main

import "stock-ledger/cmd"

func main() {
	cmd.Execute()
}
