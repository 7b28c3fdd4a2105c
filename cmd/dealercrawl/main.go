// Command dealercrawl crawls brand/location dealer listing pages and
// exports the extracted records.
package main

import "github.com/dealerwatch/dealercrawl/cmd"

func main() {
	cmd.Execute()
}
