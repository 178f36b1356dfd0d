package main

import "github.com/everFinance/domainsplit/cli/domainsplit/cmd"

func main() {
	cmd.Execute()
}
