// Command atapio drives a simulated legacy ATA disk from the command line.
package main

import "github.com/sarchlab/atapio/atapio/cmd"

func main() {
	cmd.Execute()
}
