// Command hcbench drives a hybrid cache under concurrent load and reports how
// many loader calls were needed to serve the requests.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
